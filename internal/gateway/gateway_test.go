package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/pricing"
	"github.com/nexusfleet/nexus/internal/registry"
	"github.com/nexusfleet/nexus/internal/routing"
	"github.com/nexusfleet/nexus/internal/tokenizer"
)

func newTestPipeline(reg *registry.Registry) *routing.Pipeline {
	return routing.NewPipeline(
		routing.NewRequestAnalyzer(reg, nil),
		routing.NewLifecycleReconciler(reg),
		routing.NewPrivacyReconciler(reg, routing.NewPolicyMatcher(nil)),
		routing.NewBudgetReconciler(reg, routing.DefaultBudgetConfig(), routing.NewState(), pricing.Default(), tokenizer.New()),
		routing.NewTierReconciler(reg),
		routing.NewSchedulerReconciler(reg, routing.DefaultSchedulerConfig(), nil),
	)
}

// TestChatCompletionsHappyPathLocalRoute exercises S1.
func TestChatCompletionsHappyPathLocalRoute(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(agent.ChatResponse{
			ID: "chatcmpl-1", Object: "chat.completion", Model: "llama3:8b",
			Choices: []agent.Choice{{Index: 0, Message: &agent.Message{Role: "assistant", Content: "hi there"}, FinishReason: "stop"}},
		})
	}))
	defer backend.Close()

	reg := registry.New()
	a := agent.NewOllamaAgent(agent.Config{ID: "b1", Name: "b1", BaseURL: backend.URL, HTTPClient: agent.NewHTTPClient()})
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "b1", Name: "b1", Type: "ollama", Status: registry.StatusHealthy}, a))
	require.NoError(t, reg.UpdateModels("b1", []registry.Model{{ID: "llama3:8b"}}))

	g := New(DefaultConfig(), reg, newTestPipeline(reg), nil, routing.NewState())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"llama3:8b","messages":[{"role":"user","content":"hi"}],"stream":false}`))
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "local", rec.Header().Get("X-Nexus-Backend-Type"))
	require.Equal(t, "restricted", rec.Header().Get("X-Nexus-Privacy-Zone"))

	var resp agent.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "hi there", resp.Choices[0].Message.Content)
}

func TestChatCompletionsModelNotFound(t *testing.T) {
	reg := registry.New()
	g := New(DefaultConfig(), reg, newTestPipeline(reg), nil, routing.NewState())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"nonexistent","messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

// TestChatCompletionsRetriesOnUpstream502 exercises S4.
func TestChatCompletionsRetriesOnUpstream502(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(agent.ChatResponse{
			ID: "chatcmpl-2", Object: "chat.completion", Model: "llama3:8b",
			Choices: []agent.Choice{{Index: 0, Message: &agent.Message{Role: "assistant", Content: "from the healthy one"}, FinishReason: "stop"}},
		})
	}))
	defer good.Close()

	reg := registry.New()
	failAgent := agent.NewOllamaAgent(agent.Config{ID: "a-fail", Name: "a-fail", BaseURL: failing.URL, HTTPClient: agent.NewHTTPClient()})
	goodAgent := agent.NewOllamaAgent(agent.Config{ID: "b-good", Name: "b-good", BaseURL: good.URL, HTTPClient: agent.NewHTTPClient()})
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "a-fail", Name: "a-fail", Type: "ollama", Priority: 1, Status: registry.StatusHealthy}, failAgent))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "b-good", Name: "b-good", Type: "ollama", Priority: 2, Status: registry.StatusHealthy}, goodAgent))
	require.NoError(t, reg.UpdateModels("a-fail", []registry.Model{{ID: "llama3:8b"}}))
	require.NoError(t, reg.UpdateModels("b-good", []registry.Model{{ID: "llama3:8b"}}))

	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	g := New(cfg, reg, newTestPipeline(reg), nil, routing.NewState())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"llama3:8b","messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp agent.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "from the healthy one", resp.Choices[0].Message.Content)
}

// TestChatCompletionsRecordsBudgetSpending guards against the estimated
// cost never being written back to the shared budget bucket (§4.5.4).
func TestChatCompletionsRecordsBudgetSpending(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(agent.ChatResponse{
			ID: "chatcmpl-3", Object: "chat.completion", Model: "gpt-4o",
			Choices: []agent.Choice{{Index: 0, Message: &agent.Message{Role: "assistant", Content: "ok"}, FinishReason: "stop"}},
		})
	}))
	defer backend.Close()

	reg := registry.New()
	a := agent.NewOllamaAgent(agent.Config{ID: "b1", Name: "b1", BaseURL: backend.URL, HTTPClient: agent.NewHTTPClient()})
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "b1", Name: "b1", Type: "ollama", Status: registry.StatusHealthy}, a))
	require.NoError(t, reg.UpdateModels("b1", []registry.Model{{ID: "gpt-4o"}}))

	budgetState := routing.NewState()
	pipeline := routing.NewPipeline(
		routing.NewRequestAnalyzer(reg, nil),
		routing.NewLifecycleReconciler(reg),
		routing.NewPrivacyReconciler(reg, routing.NewPolicyMatcher(nil)),
		routing.NewBudgetReconciler(reg, routing.DefaultBudgetConfig(), budgetState, pricing.Default(), tokenizer.New()),
		routing.NewTierReconciler(reg),
		routing.NewSchedulerReconciler(reg, routing.DefaultSchedulerConfig(), nil),
	)
	g := New(DefaultConfig(), reg, pipeline, nil, budgetState)

	require.Zero(t, budgetState.Snapshot())

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"` + strings.Repeat("word ", 200) + `"}],"stream":false}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Greater(t, budgetState.Snapshot(), 0.0)
}

// TestChatCompletionsForwardsUnknownFieldsAsExtra guards §6.1's promise
// that fields beyond the typed schema survive the proxy hop.
func TestChatCompletionsForwardsUnknownFieldsAsExtra(t *testing.T) {
	var captured map[string]any
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(agent.ChatResponse{
			ID: "chatcmpl-4", Object: "chat.completion", Model: "llama3:8b",
			Choices: []agent.Choice{{Index: 0, Message: &agent.Message{Role: "assistant", Content: "ok"}, FinishReason: "stop"}},
		})
	}))
	defer backend.Close()

	reg := registry.New()
	a := agent.NewOllamaAgent(agent.Config{ID: "b1", Name: "b1", BaseURL: backend.URL, HTTPClient: agent.NewHTTPClient()})
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "b1", Name: "b1", Type: "ollama", Status: registry.StatusHealthy}, a))
	require.NoError(t, reg.UpdateModels("b1", []registry.Model{{ID: "llama3:8b"}}))

	g := New(DefaultConfig(), reg, newTestPipeline(reg), nil, routing.NewState())

	body := `{"model":"llama3:8b","messages":[{"role":"user","content":"hi"}],"stream":false,"tools":[{"type":"function"}],"seed":7}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, captured, "tools")
	require.Contains(t, captured, "seed")
	require.Equal(t, float64(7), captured["seed"])
}

func TestHealthEndpointSummarizesFleet(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "b1", Status: registry.StatusHealthy}))
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "b2", Status: registry.StatusUnhealthy}))

	g := New(DefaultConfig(), reg, newTestPipeline(reg), nil, routing.NewState())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var summary healthSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, 2, summary.BackendCount)
	require.Equal(t, 1, summary.HealthyBackends)
	require.Equal(t, "degraded", summary.Status)
}
