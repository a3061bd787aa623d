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

// OpenAICompatAgent covers vLLM, Exo, LM Studio, and any other backend
// speaking the generic OpenAI /v1 dialect. It forwards the caller's
// Authorization header when present but requires no credentials of its
// own.
type OpenAICompatAgent struct {
	id      string
	name    string
	baseURL string
	client  *http.Client
	profile Profile
}

func NewOpenAICompatAgent(backendType string, cfg Config) *OpenAICompatAgent {
	if backendType == "" {
		backendType = "generic"
	}
	return &OpenAICompatAgent{
		id:      cfg.ID,
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.HTTPClient,
		profile: Profile{
			BackendType:    backendType,
			PrivacyZone:    zoneOrDefault(cfg.PrivacyZone, backendType),
			CapabilityTier: cfg.CapabilityTier,
			Capabilities:   Capabilities{ModelLifecycle: true},
		},
	}
}

func (a *OpenAICompatAgent) ID() string       { return a.id }
func (a *OpenAICompatAgent) Name() string     { return a.name }
func (a *OpenAICompatAgent) Profile() Profile { return a.profile }

type openAICompatModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (a *OpenAICompatAgent) HealthCheck(ctx context.Context) (HealthResult, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return HealthResult{}, Configurationf("%s: build probe request: %v", a.profile.BackendType, err)
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

func (a *OpenAICompatAgent) ListModels(ctx context.Context) ([]DiscoveredModel, error) {
	res, err := a.HealthCheck(ctx)
	if err != nil {
		return nil, err
	}
	return res.Models, nil
}

func (a *OpenAICompatAgent) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
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
		return nil, InvalidResponsef("%s: decode response: %v", a.profile.BackendType, err)
	}
	return &out, nil
}

func (a *OpenAICompatAgent) ChatCompletionStream(ctx context.Context, req *ChatRequest, cb StreamCallback) error {
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

func (a *OpenAICompatAgent) buildRequest(ctx context.Context, req *ChatRequest, stream bool) (*http.Request, error) {
	body, _ := json.Marshal(openAICompatRequest(req, stream))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, Configurationf("%s: build request: %v", a.profile.BackendType, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.AuthHeader != "" {
		httpReq.Header.Set("Authorization", req.AuthHeader)
	}
	return httpReq, nil
}

func (a *OpenAICompatAgent) CountTokens(ctx context.Context, text string) (TokenCount, error) {
	return TokenCount{Count: int64(len(text)) / 4, Exactness: Heuristic}, nil
}
