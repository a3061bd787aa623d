// Package agent defines the uniform capability contract that normalizes
// every backend dialect to the OpenAI request/response shape.
package agent

import (
	"context"
	"fmt"
)

// PrivacyZone classifies where a backend's traffic is allowed to flow.
type PrivacyZone string

const (
	ZoneRestricted PrivacyZone = "restricted"
	ZoneOpen       PrivacyZone = "open"
)

// DefaultZoneForType returns the zone a backend type carries absent an
// explicit override.
func DefaultZoneForType(backendType string) PrivacyZone {
	switch backendType {
	case "openai", "anthropic", "google":
		return ZoneOpen
	default:
		return ZoneRestricted
	}
}

// Capabilities enumerates the optional capabilities an agent may expose;
// checked via type assertion against the narrower interfaces below rather
// than flags, but mirrored here for profile reporting.
type Capabilities struct {
	Embeddings        bool
	ModelLifecycle    bool
	TokenCounting     bool
	ResourceMonitoring bool
}

// Profile is an immutable snapshot of an agent's identity and capability
// set, built once at registration time.
type Profile struct {
	BackendType    string
	Version        string
	PrivacyZone    PrivacyZone
	Capabilities   Capabilities
	CapabilityTier int // 0 means "unset"; EffectiveTier defaults it to 1.
}

// EffectiveTier returns the profile's capability tier, defaulting to 1.
func (p Profile) EffectiveTier() int {
	if p.CapabilityTier <= 0 {
		return 1
	}
	return p.CapabilityTier
}

// Message is one OpenAI-shaped chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the canonical request shape every agent variant consumes;
// fields beyond Model/Messages/Stream are preserved verbatim when proxying
// to OpenAI-compatible backends.
type ChatRequest struct {
	Model            string         `json:"model"`
	Messages         []Message      `json:"messages"`
	Stream           bool           `json:"stream,omitempty"`
	Temperature      *float32       `json:"temperature,omitempty"`
	MaxTokens        *uint32        `json:"max_tokens,omitempty"`
	TopP             *float32       `json:"top_p,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	PresencePenalty  *float32       `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float32       `json:"frequency_penalty,omitempty"`
	User             string         `json:"user,omitempty"`
	Extra            map[string]any `json:"-"`

	// AuthHeader, when non-empty, is the caller's Authorization header,
	// forwarded by agents whose dialect requires passthrough credentials.
	AuthHeader string `json:"-"`
}

// Choice is one completion choice in a ChatResponse.
type Choice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	FinishReason string   `json:"finish_reason,omitempty"`
}

// Usage mirrors the OpenAI usage block.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ChatResponse is the canonical non-streaming response shape.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// ChunkDelta is the incremental delta of a streaming chunk.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice is one choice in a streaming chunk.
type ChunkChoice struct {
	Index        int         `json:"index"`
	Delta        ChunkDelta  `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// ChatChunk is the canonical streaming chunk shape.
type ChatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string         `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// TokenCount carries an exactness tag alongside a token estimate.
type Exactness int

const (
	Exact Exactness = iota
	Approximate
	Heuristic
)

type TokenCount struct {
	Count     int64
	Exactness Exactness
}

// DiscoveredModel is a model reported by an agent's ListModels or HealthCheck.
type DiscoveredModel struct {
	ID               string
	Name             string
	ContextLength    int
	SupportsVision   bool
	SupportsTools    bool
	SupportsJSONMode bool
	MaxOutputTokens  int
}

// Error is the normalized agent error taxonomy (§4.2/§7).
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int // set for Upstream
	Op      string // set for Unsupported
}

type ErrorKind int

const (
	ErrTimeout ErrorKind = iota
	ErrNetwork
	ErrUpstream
	ErrInvalidResponse
	ErrConfiguration
	ErrUnsupported
)

func (e *Error) Error() string {
	switch e.Kind {
	case ErrTimeout:
		return fmt.Sprintf("agent: timeout: %s", e.Message)
	case ErrNetwork:
		return fmt.Sprintf("agent: network: %s", e.Message)
	case ErrUpstream:
		return fmt.Sprintf("agent: upstream status %d: %s", e.Status, e.Message)
	case ErrInvalidResponse:
		return fmt.Sprintf("agent: invalid response: %s", e.Message)
	case ErrConfiguration:
		return fmt.Sprintf("agent: configuration: %s", e.Message)
	case ErrUnsupported:
		return fmt.Sprintf("agent: unsupported operation %q", e.Op)
	default:
		return fmt.Sprintf("agent: %s", e.Message)
	}
}

func (e *Error) Unwrap() error { return nil }

func Timeoutf(format string, args ...any) error {
	return &Error{Kind: ErrTimeout, Message: fmt.Sprintf(format, args...)}
}

func Networkf(format string, args ...any) error {
	return &Error{Kind: ErrNetwork, Message: fmt.Sprintf(format, args...)}
}

func Upstream(status int, body string) error {
	return &Error{Kind: ErrUpstream, Status: status, Message: body}
}

func InvalidResponsef(format string, args ...any) error {
	return &Error{Kind: ErrInvalidResponse, Message: fmt.Sprintf(format, args...)}
}

func Configurationf(format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Message: fmt.Sprintf(format, args...)}
}

func Unsupported(op string) error {
	return &Error{Kind: ErrUnsupported, Op: op}
}

// StreamCallback receives one translated chunk at a time; returning an
// error aborts the stream.
type StreamCallback func(*ChatChunk) error

// Agent is the polymorphic contract every backend dialect implements.
type Agent interface {
	ID() string
	Name() string
	Profile() Profile
	HealthCheck(ctx context.Context) (HealthResult, error)
	ListModels(ctx context.Context) ([]DiscoveredModel, error)
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	CountTokens(ctx context.Context, text string) (TokenCount, error)
}

// StreamingAgent is implemented by agents that can stream chat completions.
type StreamingAgent interface {
	Agent
	ChatCompletionStream(ctx context.Context, req *ChatRequest, cb StreamCallback) error
}

// EmbeddingAgent is implemented by agents that advertise embeddings.
// extra carries request fields beyond model/input (e.g. "dimensions",
// "encoding_format"), preserved verbatim when proxying (§6.1).
type EmbeddingAgent interface {
	Agent
	Embeddings(ctx context.Context, model string, texts []string, extra map[string]any) ([][]float64, error)
}

// HealthResult is the outcome of one probe cycle (§3.1 HealthCheckResult).
type HealthResult struct {
	OK         bool
	ParseError string // set when OK but the body didn't parse
	LatencyMs  int64
	Models     []DiscoveredModel
}
