package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaAgent talks the Ollama OpenAI-compatible dialect, with a native
// /api/tags probe and no auth.
type OllamaAgent struct {
	id      string
	name    string
	baseURL string
	client  *http.Client
	profile Profile
}

func NewOllamaAgent(cfg Config) *OllamaAgent {
	return &OllamaAgent{
		id:      cfg.ID,
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.HTTPClient,
		profile: Profile{
			BackendType:    "ollama",
			PrivacyZone:    zoneOrDefault(cfg.PrivacyZone, "ollama"),
			CapabilityTier: cfg.CapabilityTier,
			Capabilities:   Capabilities{Embeddings: true, ModelLifecycle: true},
		},
	}
}

func (a *OllamaAgent) ID() string       { return a.id }
func (a *OllamaAgent) Name() string     { return a.name }
func (a *OllamaAgent) Profile() Profile { return a.profile }

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

func (a *OllamaAgent) HealthCheck(ctx context.Context) (HealthResult, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return HealthResult{}, Configurationf("ollama: build probe request: %v", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return HealthResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()
	latency := time.Since(start).Milliseconds()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return HealthResult{}, Upstream(resp.StatusCode, string(respBody))
	}
	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return HealthResult{OK: true, LatencyMs: latency, ParseError: err.Error()}, nil
	}
	models := make([]DiscoveredModel, 0, len(tags.Models))
	for _, m := range tags.Models {
		id := m.Model
		if id == "" {
			id = m.Name
		}
		models = append(models, DiscoveredModel{ID: id, Name: m.Name})
	}
	return HealthResult{OK: true, LatencyMs: latency, Models: models}, nil
}

func (a *OllamaAgent) ListModels(ctx context.Context) ([]DiscoveredModel, error) {
	res, err := a.HealthCheck(ctx)
	if err != nil {
		return nil, err
	}
	return res.Models, nil
}

func (a *OllamaAgent) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, _ := json.Marshal(openAICompatRequest(req, false))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, Configurationf("ollama: build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, Upstream(resp.StatusCode, string(respBody))
	}
	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, InvalidResponsef("ollama: decode response: %v", err)
	}
	return &out, nil
}

func (a *OllamaAgent) ChatCompletionStream(ctx context.Context, req *ChatRequest, cb StreamCallback) error {
	body, _ := json.Marshal(openAICompatRequest(req, true))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Configurationf("ollama: build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Upstream(resp.StatusCode, string(respBody))
	}
	return translateSSEPassthrough(resp.Body, cb)
}

func (a *OllamaAgent) CountTokens(ctx context.Context, text string) (TokenCount, error) {
	return TokenCount{Count: int64(len(text)) / 4, Exactness: Heuristic}, nil
}

// openAICompatRequest builds the wire body shared by Ollama and the
// generic OpenAI-compatible variants.
func openAICompatRequest(req *ChatRequest, stream bool) map[string]any {
	m := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   stream,
	}
	if req.Temperature != nil {
		m["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		m["max_tokens"] = *req.MaxTokens
	}
	if req.TopP != nil {
		m["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		m["stop"] = req.Stop
	}
	if req.PresencePenalty != nil {
		m["presence_penalty"] = *req.PresencePenalty
	}
	if req.FrequencyPenalty != nil {
		m["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.User != "" {
		m["user"] = req.User
	}
	for k, v := range req.Extra {
		m[k] = v
	}
	return m
}

func classifyTransportError(err error) error {
	if te, ok := err.(interface{ Timeout() bool }); ok && te.Timeout() {
		return Timeoutf("%v", err)
	}
	return Networkf("%v", err)
}

func zoneOrDefault(z PrivacyZone, backendType string) PrivacyZone {
	if z != "" {
		return z
	}
	return DefaultZoneForType(backendType)
}

// translateSSEPassthrough forwards an upstream SSE stream whose chunks are
// already OpenAI-shaped, stopping cleanly at "[DONE]".
func translateSSEPassthrough(body io.Reader, cb StreamCallback) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return nil
		}
		var chunk ChatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if err := cb(&chunk); err != nil {
			return err
		}
	}
	return scanner.Err()
}
