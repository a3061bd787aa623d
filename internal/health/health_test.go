package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/registry"
)

func newCheckerWithBackend(t *testing.T, handler http.HandlerFunc) (*Checker, *registry.Registry, string, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	reg := registry.New()
	a := agent.NewOllamaAgent(agent.Config{ID: "b1", Name: "b1", BaseURL: srv.URL, HTTPClient: agent.NewHTTPClient()})
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "b1", Name: "b1", BaseURL: srv.URL, Type: "ollama"}, a))
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cfg.RecoveryThreshold = 2
	return New(reg, cfg), reg, "b1", srv.Close
}

func TestUnknownBecomesUnhealthyOnFirstFailure(t *testing.T) {
	c, reg, id, closeSrv := newCheckerWithBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer closeSrv()

	ctx := context.Background()
	// First failure transitions Unknown -> Unhealthy immediately.
	c.RunOnce(ctx)
	b, err := reg.GetBackend(id)
	require.NoError(t, err)
	require.Equal(t, registry.StatusUnhealthy, b.Status)
}

func TestUnhealthyToHealthyRequiresRecoveryThreshold(t *testing.T) {
	failing := true
	c, reg, id, closeSrv := newCheckerWithBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[]}`))
	})
	defer closeSrv()

	ctx := context.Background()
	c.RunOnce(ctx) // Unknown -> Unhealthy

	failing = false
	c.RunOnce(ctx) // 1st success
	b, err := reg.GetBackend(id)
	require.NoError(t, err)
	require.Equal(t, registry.StatusUnhealthy, b.Status, "must not flip after a single success")

	c.RunOnce(ctx) // 2nd consecutive success meets recovery threshold
	b, err = reg.GetBackend(id)
	require.NoError(t, err)
	require.Equal(t, registry.StatusHealthy, b.Status)
}

func TestParseErrorPreservesLastKnownModels(t *testing.T) {
	returnGood := true
	c, reg, id, closeSrv := newCheckerWithBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if returnGood {
			w.Write([]byte(`{"models":[{"model":"llama3:8b"}]}`))
			return
		}
		w.Write([]byte(`not json`))
	})
	defer closeSrv()

	ctx := context.Background()
	c.RunOnce(ctx)
	b, err := reg.GetBackend(id)
	require.NoError(t, err)
	require.Len(t, b.Models, 1)

	returnGood = false
	c.RunOnce(ctx)
	b, err = reg.GetBackend(id)
	require.NoError(t, err)
	require.Len(t, b.Models, 1, "models must survive a parse-error probe")
	require.Equal(t, registry.StatusHealthy, b.Status, "parse error is not a failure")
}

func TestRunOnceIsTimeBounded(t *testing.T) {
	c, _, _, closeSrv := newCheckerWithBackend(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	defer closeSrv()
	c.cfg.Timeout = 10 * time.Millisecond
	c.RunOnce(context.Background())
}
