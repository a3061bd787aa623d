package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nexusfleet/nexus/internal/config"
)

// adminBaseURL resolves the gateway's address from config + CLI
// overrides, defaulting to the standard loopback address.
func adminBaseURL() (string, error) {
	cfg, err := config.Load(configPath, loadOverrides())
	if err != nil {
		return "", err
	}
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port), nil
}

func getJSON(url string, out any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}
