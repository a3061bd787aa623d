package agent

import (
	"net/http"
	"time"
)

// Config is the constructor input for every agent variant (§3.1: "created
// at registration time from (id, type, url, metadata, privacy_zone,
// capability_tier)").
type Config struct {
	ID             string
	Name           string
	BaseURL        string
	Metadata       map[string]string
	PrivacyZone    PrivacyZone
	CapabilityTier int
	APIKey         string
	HTTPClient     *http.Client
}

// NewHTTPClient builds the single shared outbound client mandated by §9
// ("Global HTTP client"): connection pooling, bounded idle conns per host.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: transport}
}
