package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GoogleAgent talks the Gemini generateContent/streamGenerateContent API,
// authenticated with a `key` query parameter.
type GoogleAgent struct {
	id      string
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	profile Profile
}

func NewGoogleAgent(cfg Config) *GoogleAgent {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	return &GoogleAgent{
		id:      cfg.ID,
		name:    cfg.Name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  cfg.HTTPClient,
		profile: Profile{
			BackendType:    "google",
			PrivacyZone:    zoneOrDefault(cfg.PrivacyZone, "google"),
			CapabilityTier: cfg.CapabilityTier,
		},
	}
}

func (a *GoogleAgent) ID() string       { return a.id }
func (a *GoogleAgent) Name() string     { return a.name }
func (a *GoogleAgent) Profile() Profile { return a.profile }

type googleModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (a *GoogleAgent) HealthCheck(ctx context.Context) (HealthResult, error) {
	if a.apiKey == "" {
		return HealthResult{}, Configurationf("google: api key not configured for %s", a.name)
	}
	start := time.Now()
	u := a.baseURL + "/v1beta/models?key=" + url.QueryEscape(a.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return HealthResult{}, Configurationf("google: build probe request: %v", err)
	}
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
	var list googleModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return HealthResult{OK: true, LatencyMs: latency, ParseError: err.Error()}, nil
	}
	models := make([]DiscoveredModel, 0, len(list.Models))
	for _, m := range list.Models {
		id := strings.TrimPrefix(m.Name, "models/")
		models = append(models, DiscoveredModel{ID: id, Name: id})
	}
	return HealthResult{OK: true, LatencyMs: latency, Models: models}, nil
}

func (a *GoogleAgent) ListModels(ctx context.Context) ([]DiscoveredModel, error) {
	res, err := a.HealthCheck(ctx)
	if err != nil {
		return nil, err
	}
	return res.Models, nil
}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

type googleGenerateRequest struct {
	Contents          []googleContent `json:"contents"`
	SystemInstruction *googleContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  map[string]any  `json:"generationConfig,omitempty"`
}

type googleCandidate struct {
	Content      googleContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type googleGenerateResponse struct {
	Candidates []googleCandidate `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// toGoogleRequest implements the OpenAI → Google translation of §4.2:
// system messages lifted into systemInstruction, assistant ↔ model role
// mapping, temperature/max_tokens folded into generationConfig.
func toGoogleRequest(req *ChatRequest) googleGenerateRequest {
	var system []string
	contents := make([]googleContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, googleContent{Role: role, Parts: []googlePart{{Text: m.Content}}})
	}
	out := googleGenerateRequest{Contents: contents}
	if len(system) > 0 {
		out.SystemInstruction = &googleContent{Parts: []googlePart{{Text: strings.Join(system, "\n")}}}
	}
	genConfig := map[string]any{}
	if req.Temperature != nil {
		genConfig["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		genConfig["maxOutputTokens"] = *req.MaxTokens
	}
	if len(genConfig) > 0 {
		out.GenerationConfig = genConfig
	}
	return out
}

func googleFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return "stop"
	}
}

func (a *GoogleAgent) endpoint(model, method string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s", a.baseURL, model, method, url.QueryEscape(a.apiKey))
}

func (a *GoogleAgent) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if a.apiKey == "" {
		return nil, Configurationf("google: api key not configured for %s", a.name)
	}
	body, _ := json.Marshal(toGoogleRequest(req))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(req.Model, "generateContent"), bytes.NewReader(body))
	if err != nil {
		return nil, Configurationf("google: build request: %v", err)
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
	var out googleGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, InvalidResponsef("google: decode response: %v", err)
	}
	content := ""
	finish := "stop"
	if len(out.Candidates) > 0 {
		c := out.Candidates[0]
		finish = googleFinishReason(c.FinishReason)
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
		content = sb.String()
	}
	return &ChatResponse{
		ID:      "chatcmpl-" + uuid.New().String(),
		Object:  "chat.completion",
		Model:   req.Model,
		Choices: []Choice{{Index: 0, Message: &Message{Role: "assistant", Content: content}, FinishReason: finish}},
		Usage: Usage{
			PromptTokens:     out.UsageMetadata.PromptTokenCount,
			CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      out.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func (a *GoogleAgent) ChatCompletionStream(ctx context.Context, req *ChatRequest, cb StreamCallback) error {
	if a.apiKey == "" {
		return Configurationf("google: api key not configured for %s", a.name)
	}
	body, _ := json.Marshal(toGoogleRequest(req))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(req.Model, "streamGenerateContent")+"&alt=sse", bytes.NewReader(body))
	if err != nil {
		return Configurationf("google: build request: %v", err)
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
	return translateGoogleSSE(resp.Body, req.Model, cb)
}

// translateGoogleSSE converts Gemini's candidate-part stream to
// OpenAI-shaped chunks, emitting a role chunk first and a finish_reason
// chunk when a candidate reports one.
func translateGoogleSSE(body io.Reader, model string, cb StreamCallback) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sentRole := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var chunk googleGenerateResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if !sentRole {
			sentRole = true
			if err := cb(newGoogleChunk(model, ChunkDelta{Role: "assistant"}, nil)); err != nil {
				return err
			}
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		c := chunk.Candidates[0]
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			if err := cb(newGoogleChunk(model, ChunkDelta{Content: sb.String()}, nil)); err != nil {
				return err
			}
		}
		if c.FinishReason != "" {
			reason := googleFinishReason(c.FinishReason)
			if err := cb(newGoogleChunk(model, ChunkDelta{}, &reason)); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

func newGoogleChunk(model string, delta ChunkDelta, finishReason *string) *ChatChunk {
	return &ChatChunk{
		ID:      "chatcmpl-" + uuid.New().String(),
		Object:  "chat.completion.chunk",
		Model:   model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
	}
}

func (a *GoogleAgent) CountTokens(ctx context.Context, text string) (TokenCount, error) {
	return TokenCount{Count: int64(len(text)) / 4, Exactness: Heuristic}, nil
}
