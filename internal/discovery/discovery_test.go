package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusfleet/nexus/internal/registry"
)

func TestClassifyInfersOllamaFromServiceType(t *testing.T) {
	backendType, apiPath := classify("_ollama._tcp", nil)
	require.Equal(t, "ollama", backendType)
	require.Equal(t, "", apiPath)
}

func TestClassifyDefaultsToGenericWithV1Path(t *testing.T) {
	backendType, apiPath := classify("_llm._tcp", nil)
	require.Equal(t, "generic", backendType)
	require.Equal(t, "/v1", apiPath)
}

func TestClassifyHonoursTXTOverrides(t *testing.T) {
	backendType, apiPath := classify("_llm._tcp", []string{"type=vllm", "api_path=/api"})
	require.Equal(t, "vllm", backendType)
	require.Equal(t, "/api", apiPath)
}

// TestSweepEvictsAfterGracePeriodAndReappearanceCancels exercises S6: a
// removed backend that reappears before the grace period elapses is
// never evicted; one that stays gone is removed once the grace period
// passes.
func TestSweepEvictsAfterGracePeriodAndReappearanceCancels(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "b1", DiscoverySource: registry.SourceMDNS}))
	require.NoError(t, reg.SetMDNSInstance("b1", "inst1"))
	require.NoError(t, reg.AddBackend(registry.Backend{ID: "b2", DiscoverySource: registry.SourceMDNS}))
	require.NoError(t, reg.SetMDNSInstance("b2", "inst2"))

	cfg := DefaultConfig()
	cfg.GracePeriod = 10 * time.Millisecond
	d := New(reg, cfg)

	d.handleRemoved("inst1")
	d.handleRemoved("inst2")

	// inst2 reappears before the grace period elapses.
	d.mu.Lock()
	delete(d.pendingRemoval, "inst2")
	d.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	d.sweepOnce()

	_, err := reg.GetBackend("b1")
	require.ErrorIs(t, err, registry.ErrNotFound, "b1 stayed removed past the grace period and must be evicted")

	_, err = reg.GetBackend("b2")
	require.NoError(t, err, "b2 reappeared before the grace period and must survive")
}
