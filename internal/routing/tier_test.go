package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/registry"
)

func TestTierReconcilerExcludesMissingCapability(t *testing.T) {
	reg := registry.New()
	model := registry.Model{ID: "m1", SupportsVision: false}
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "b1", Models: []registry.Model{model}}, newStubAgent("b1", agent.ZoneRestricted, 1)))

	tr := NewTierReconciler(reg)
	intent := NewIntent("r1", "m1", RequestRequirements{NeedsVision: true}, "")
	intent.ResolvedModel = "m1"
	intent.CandidateAgents = []string{"b1"}

	require.NoError(t, tr.Reconcile(context.Background(), intent))
	require.Empty(t, intent.CandidateAgents)
}

func TestTierReconcilerStrictExcludesUnderTier(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "low"}, newStubAgent("low", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "high"}, newStubAgent("high", agent.ZoneRestricted, 3)))

	tr := NewTierReconciler(reg)
	intent := NewIntent("r1", "m1", RequestRequirements{}, "")
	intent.ResolvedModel = "m1"
	intent.CandidateAgents = []string{"low", "high"}
	intent.MinCapabilityTier = 2
	intent.TierEnforcementMode = TierStrict

	require.NoError(t, tr.Reconcile(context.Background(), intent))
	require.Equal(t, []string{"high"}, intent.CandidateAgents)
}

func TestTierReconcilerFlexibleDegradesWhenNoneQualify(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "low1"}, newStubAgent("low1", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "low2"}, newStubAgent("low2", agent.ZoneRestricted, 1)))

	tr := NewTierReconciler(reg)
	intent := NewIntent("r1", "m1", RequestRequirements{}, "")
	intent.ResolvedModel = "m1"
	intent.CandidateAgents = []string{"low1", "low2"}
	intent.MinCapabilityTier = 2
	intent.TierEnforcementMode = TierFlexible

	require.NoError(t, tr.Reconcile(context.Background(), intent))
	require.ElementsMatch(t, []string{"low1", "low2"}, intent.CandidateAgents, "flexible mode keeps all candidates when none clear the bar")
}

func TestTierReconcilerFlexibleStillEnforcesWhenSomeQualify(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "low"}, newStubAgent("low", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "high"}, newStubAgent("high", agent.ZoneRestricted, 3)))

	tr := NewTierReconciler(reg)
	intent := NewIntent("r1", "m1", RequestRequirements{}, "")
	intent.ResolvedModel = "m1"
	intent.CandidateAgents = []string{"low", "high"}
	intent.MinCapabilityTier = 2
	intent.TierEnforcementMode = TierFlexible

	require.NoError(t, tr.Reconcile(context.Background(), intent))
	require.Equal(t, []string{"high"}, intent.CandidateAgents)
}
