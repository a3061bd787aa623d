package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// OpenAIAgent talks api.openai.com with Bearer auth and exact BPE token
// counting, per §4.2.
type OpenAIAgent struct {
	id      string
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	profile Profile
	encoder *tiktoken.Tiktoken
}

func NewOpenAIAgent(cfg Config) *OpenAIAgent {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	enc, _ := tiktoken.GetEncoding("o200k_base")
	return &OpenAIAgent{
		id:      cfg.ID,
		name:    cfg.Name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  cfg.HTTPClient,
		encoder: enc,
		profile: Profile{
			BackendType:    "openai",
			PrivacyZone:    zoneOrDefault(cfg.PrivacyZone, "openai"),
			CapabilityTier: cfg.CapabilityTier,
			Capabilities:   Capabilities{Embeddings: true, TokenCounting: true},
		},
	}
}

func (a *OpenAIAgent) ID() string       { return a.id }
func (a *OpenAIAgent) Name() string     { return a.name }
func (a *OpenAIAgent) Profile() Profile { return a.profile }

func (a *OpenAIAgent) authHeader(req *ChatRequest) string {
	if a.apiKey != "" {
		return "Bearer " + a.apiKey
	}
	return req.AuthHeader
}

func (a *OpenAIAgent) HealthCheck(ctx context.Context) (HealthResult, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return HealthResult{}, Configurationf("openai: build probe request: %v", err)
	}
	if a.apiKey == "" {
		return HealthResult{}, Configurationf("openai: api key not configured for %s", a.name)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return HealthResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()
	latency := time.Since(start).Milliseconds()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return HealthResult{}, Upstream(resp.StatusCode, string(body))
	}
	var list openAICompatModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return HealthResult{OK: true, LatencyMs: latency, ParseError: err.Error()}, nil
	}
	models := make([]DiscoveredModel, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, DiscoveredModel{ID: m.ID, Name: m.ID})
	}
	return HealthResult{OK: true, LatencyMs: latency, Models: models}, nil
}

func (a *OpenAIAgent) ListModels(ctx context.Context) ([]DiscoveredModel, error) {
	res, err := a.HealthCheck(ctx)
	if err != nil {
		return nil, err
	}
	return res.Models, nil
}

func (a *OpenAIAgent) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	httpReq, err := a.buildRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, Upstream(resp.StatusCode, string(body))
	}
	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, InvalidResponsef("openai: decode response: %v", err)
	}
	return &out, nil
}

func (a *OpenAIAgent) ChatCompletionStream(ctx context.Context, req *ChatRequest, cb StreamCallback) error {
	httpReq, err := a.buildRequest(ctx, req, true)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Upstream(resp.StatusCode, string(body))
	}
	return translateSSEPassthrough(resp.Body, cb)
}

func (a *OpenAIAgent) buildRequest(ctx context.Context, req *ChatRequest, stream bool) (*http.Request, error) {
	auth := a.authHeader(req)
	if auth == "" {
		return nil, Configurationf("openai: no api key configured and no caller Authorization forwarded for %s", a.name)
	}
	body, _ := json.Marshal(openAICompatRequest(req, stream))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, Configurationf("openai: build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", auth)
	return httpReq, nil
}

// CountTokens returns the exact BPE token count using the o200k_base
// encoding, falling back to the heuristic if the encoder failed to load.
func (a *OpenAIAgent) CountTokens(ctx context.Context, text string) (TokenCount, error) {
	if a.encoder == nil {
		return TokenCount{Count: int64(len(text)) / 4, Exactness: Heuristic}, nil
	}
	tokens := a.encoder.Encode(text, nil, nil)
	return TokenCount{Count: int64(len(tokens)), Exactness: Exact}, nil
}

func (a *OpenAIAgent) Embeddings(ctx context.Context, model string, texts []string, extra map[string]any) ([][]float64, error) {
	if a.apiKey == "" {
		return nil, Configurationf("openai: api key not configured for %s", a.name)
	}
	wire := map[string]any{"model": model, "input": texts}
	for k, v := range extra {
		wire[k] = v
	}
	reqBody, _ := json.Marshal(wire)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, Configurationf("openai: build embeddings request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, Upstream(resp.StatusCode, string(body))
	}
	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, InvalidResponsef("openai: decode embeddings response: %v", err)
	}
	result := make([][]float64, len(out.Data))
	for i, d := range out.Data {
		result[i] = d.Embedding
	}
	return result, nil
}
