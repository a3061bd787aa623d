package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// LlamaCppAgent talks llama.cpp's OpenAI-compatible server, whose /health
// probe reports only liveness — it advertises no model catalogue, so the
// last known models are preserved by the caller (the health checker), not
// by this agent.
type LlamaCppAgent struct {
	id      string
	name    string
	baseURL string
	client  *http.Client
	profile Profile
}

func NewLlamaCppAgent(cfg Config) *LlamaCppAgent {
	return &LlamaCppAgent{
		id:      cfg.ID,
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.HTTPClient,
		profile: Profile{
			BackendType:    "llamacpp",
			PrivacyZone:    zoneOrDefault(cfg.PrivacyZone, "llamacpp"),
			CapabilityTier: cfg.CapabilityTier,
		},
	}
}

func (a *LlamaCppAgent) ID() string       { return a.id }
func (a *LlamaCppAgent) Name() string     { return a.name }
func (a *LlamaCppAgent) Profile() Profile { return a.profile }

type llamaCppHealth struct {
	Status string `json:"status"`
}

func (a *LlamaCppAgent) HealthCheck(ctx context.Context) (HealthResult, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return HealthResult{}, Configurationf("llamacpp: build probe request: %v", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return HealthResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()
	latency := time.Since(start).Milliseconds()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return HealthResult{}, Upstream(resp.StatusCode, string(body))
	}
	var h llamaCppHealth
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return HealthResult{OK: true, LatencyMs: latency, ParseError: err.Error()}, nil
	}
	if h.Status != "ok" {
		return HealthResult{OK: true, LatencyMs: latency, ParseError: "status not ok: " + h.Status}, nil
	}
	// No model catalogue in the probe response; caller preserves last known.
	return HealthResult{OK: true, LatencyMs: latency}, nil
}

func (a *LlamaCppAgent) ListModels(ctx context.Context) ([]DiscoveredModel, error) {
	return nil, Unsupported("list_models")
}

func (a *LlamaCppAgent) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, _ := json.Marshal(openAICompatRequest(req, false))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, Configurationf("llamacpp: build request: %v", err)
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
		return nil, InvalidResponsef("llamacpp: decode response: %v", err)
	}
	return &out, nil
}

func (a *LlamaCppAgent) ChatCompletionStream(ctx context.Context, req *ChatRequest, cb StreamCallback) error {
	body, _ := json.Marshal(openAICompatRequest(req, true))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Configurationf("llamacpp: build request: %v", err)
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

func (a *LlamaCppAgent) CountTokens(ctx context.Context, text string) (TokenCount, error) {
	return TokenCount{Count: int64(len(text)) / 4, Exactness: Heuristic}, nil
}
