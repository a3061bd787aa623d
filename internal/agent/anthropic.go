package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AnthropicAgent talks the Anthropic Messages API: x-api-key auth, a
// fixed claude model list (no discovery endpoint), and event-typed SSE
// translated into the OpenAI chunk shape.
type AnthropicAgent struct {
	id      string
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	profile Profile
}

var anthropicModelCatalogue = []DiscoveredModel{
	{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextLength: 200000},
	{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", ContextLength: 200000},
	{ID: "claude-3-sonnet-20240229", Name: "Claude 3 Sonnet", ContextLength: 200000},
	{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextLength: 200000},
}

const anthropicVersion = "2023-06-01"

func NewAnthropicAgent(cfg Config) *AnthropicAgent {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicAgent{
		id:      cfg.ID,
		name:    cfg.Name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  cfg.HTTPClient,
		profile: Profile{
			BackendType:    "anthropic",
			PrivacyZone:    zoneOrDefault(cfg.PrivacyZone, "anthropic"),
			CapabilityTier: cfg.CapabilityTier,
		},
	}
}

func (a *AnthropicAgent) ID() string       { return a.id }
func (a *AnthropicAgent) Name() string     { return a.name }
func (a *AnthropicAgent) Profile() Profile { return a.profile }

func (a *AnthropicAgent) setHeaders(req *http.Request) error {
	if a.apiKey == "" {
		return Configurationf("anthropic: api key not configured for %s", a.name)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return nil
}

func (a *AnthropicAgent) HealthCheck(ctx context.Context) (HealthResult, error) {
	start := time.Now()
	body, _ := json.Marshal(anthropicMessagesRequest{
		Model:     anthropicModelCatalogue[len(anthropicModelCatalogue)-1].ID,
		Messages:  []Message{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return HealthResult{}, Configurationf("anthropic: build probe request: %v", err)
	}
	if err := a.setHeaders(httpReq); err != nil {
		return HealthResult{}, err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return HealthResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()
	latency := time.Since(start).Milliseconds()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return HealthResult{}, Upstream(resp.StatusCode, string(respBody))
	}
	return HealthResult{OK: true, LatencyMs: latency, Models: anthropicModelCatalogue}, nil
}

func (a *AnthropicAgent) ListModels(ctx context.Context) ([]DiscoveredModel, error) {
	return anthropicModelCatalogue, nil
}

type anthropicMessagesRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	System    string    `json:"system,omitempty"`
	MaxTokens int       `json:"max_tokens"`
	Stream    bool      `json:"stream,omitempty"`
}

type anthropicMessagesResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// toAnthropicRequest implements the OpenAI → Anthropic translation of
// §4.2: system messages concatenated and lifted to the top-level field,
// max_tokens defaulted to 4096 since Anthropic requires it.
func toAnthropicRequest(req *ChatRequest, stream bool) anthropicMessagesRequest {
	var system []string
	messages := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, m)
	}
	maxTokens := 4096
	if req.MaxTokens != nil {
		maxTokens = int(*req.MaxTokens)
	}
	return anthropicMessagesRequest{
		Model:     req.Model,
		Messages:  messages,
		System:    strings.Join(system, "\n"),
		MaxTokens: maxTokens,
		Stream:    stream,
	}
}

func anthropicStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

func (a *AnthropicAgent) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, _ := json.Marshal(toAnthropicRequest(req, false))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, Configurationf("anthropic: build request: %v", err)
	}
	if err := a.setHeaders(httpReq); err != nil {
		return nil, err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, Upstream(resp.StatusCode, string(respBody))
	}
	var out anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, InvalidResponsef("anthropic: decode response: %v", err)
	}
	var content strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			content.WriteString(c.Text)
		}
	}
	return &ChatResponse{
		ID:      out.ID,
		Object:  "chat.completion",
		Model:   req.Model,
		Choices: []Choice{{Index: 0, Message: &Message{Role: "assistant", Content: content.String()}, FinishReason: anthropicStopReason(out.StopReason)}},
		Usage: Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
	}, nil
}

// anthropicEvent is the minimal shape needed to translate the event
// types named in §8.3 scenario S5.
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
	} `json:"content_block"`
}

func (a *AnthropicAgent) ChatCompletionStream(ctx context.Context, req *ChatRequest, cb StreamCallback) error {
	body, _ := json.Marshal(toAnthropicRequest(req, true))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Configurationf("anthropic: build request: %v", err)
	}
	if err := a.setHeaders(httpReq); err != nil {
		return err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Upstream(resp.StatusCode, string(respBody))
	}
	return translateAnthropicSSE(resp.Body, req.Model, cb)
}

// translateAnthropicSSE converts Anthropic's event-typed SSE stream to
// OpenAI-shaped chunks: a role-bearing chunk on message_start, a
// content-bearing chunk per text delta, and a finish_reason chunk on
// message_delta. It does not emit the terminal [DONE] sentinel; the
// gateway writes that after the stream ends.
func translateAnthropicSSE(body io.Reader, model string, cb StreamCallback) error {
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
		var evt anthropicEvent
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			continue
		}
		switch evt.Type {
		case "message_start":
			if !sentRole {
				sentRole = true
				if err := cb(newAnthropicChunk(model, ChunkDelta{Role: "assistant"}, nil)); err != nil {
					return err
				}
			}
		case "content_block_delta":
			if evt.Delta.Type == "text_delta" && evt.Delta.Text != "" {
				if err := cb(newAnthropicChunk(model, ChunkDelta{Content: evt.Delta.Text}, nil)); err != nil {
					return err
				}
			}
		case "message_delta":
			reason := anthropicStopReason(evt.Delta.StopReason)
			if err := cb(newAnthropicChunk(model, ChunkDelta{}, &reason)); err != nil {
				return err
			}
		case "message_stop":
			return nil
		}
	}
	return scanner.Err()
}

// newAnthropicChunk mints a fresh chunk id per translated event, matching
// the upstream behaviour noted in spec §9: chunk ids are independent of
// the message_start id.
func newAnthropicChunk(model string, delta ChunkDelta, finishReason *string) *ChatChunk {
	return &ChatChunk{
		ID:      fmt.Sprintf("chatcmpl-%s", uuid.New().String()),
		Object:  "chat.completion.chunk",
		Model:   model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
	}
}

func (a *AnthropicAgent) CountTokens(ctx context.Context, text string) (TokenCount, error) {
	return TokenCount{Count: int64(len(text)) / 4, Exactness: Heuristic}, nil
}
