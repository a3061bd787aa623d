package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/pricing"
	"github.com/nexusfleet/nexus/internal/registry"
	"github.com/nexusfleet/nexus/internal/tokenizer"
)

func buildPipeline(t *testing.T, reg *registry.Registry) *Pipeline {
	t.Helper()
	policyMatcher := NewPolicyMatcher(nil)
	return NewPipeline(
		NewRequestAnalyzer(reg, nil),
		NewLifecycleReconciler(reg),
		NewPrivacyReconciler(reg, policyMatcher),
		NewBudgetReconciler(reg, DefaultBudgetConfig(), NewState(), pricing.Default(), tokenizer.New()),
		NewTierReconciler(reg),
		NewSchedulerReconciler(reg, DefaultSchedulerConfig(), nil),
	)
}

// TestPipelineRoutesToOnlyHealthyCandidate exercises S1: one healthy
// backend serving the requested model routes cleanly.
func TestPipelineRoutesToOnlyHealthyCandidate(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{
		ID: "b1", Status: registry.StatusHealthy, Models: []registry.Model{{ID: "llama3"}},
	}, newStubAgent("b1", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.UpdateModels("b1", []registry.Model{{ID: "llama3"}}))

	p := buildPipeline(t, reg)
	intent := NewIntent("req-1", "llama3", RequestRequirements{EstimatedTokens: 50}, "")
	decision := p.Run(context.Background(), intent)

	require.Equal(t, DecisionRoute, decision.Kind)
	require.Equal(t, "b1", decision.AgentID)
}

// TestPipelineRejectsWhenNoBackendServesModel exercises S2.
func TestPipelineRejectsWhenNoBackendServesModel(t *testing.T) {
	reg := registry.New()
	p := buildPipeline(t, reg)
	intent := NewIntent("req-2", "nonexistent-model", RequestRequirements{}, "")
	decision := p.Run(context.Background(), intent)

	require.Equal(t, DecisionReject, decision.Kind)
}

// TestPipelineLifecycleExcludesBusyBackend exercises S3: a backend mid
// model-load is skipped in favor of an idle one.
func TestPipelineLifecycleExcludesBusyBackend(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{
		ID: "loading", Status: registry.StatusHealthy, Models: []registry.Model{{ID: "m1"}},
		CurrentOperation: &registry.CurrentOperation{Type: registry.OpLoad, Status: registry.OpInProgress, ProgressPercent: 40, ModelID: "m1"},
	}, newStubAgent("loading", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{
		ID: "idle", Status: registry.StatusHealthy, Models: []registry.Model{{ID: "m1"}},
	}, newStubAgent("idle", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.UpdateModels("loading", []registry.Model{{ID: "m1"}}))
	require.NoError(t, reg.UpdateModels("idle", []registry.Model{{ID: "m1"}}))

	p := buildPipeline(t, reg)
	intent := NewIntent("req-3", "m1", RequestRequirements{}, "")
	decision := p.Run(context.Background(), intent)

	require.Equal(t, DecisionRoute, decision.Kind)
	require.Equal(t, "idle", decision.AgentID)
}

// TestPipelinePrivacyPolicyExcludesCloudBackend exercises S4: a
// restricted policy keeps a cloud candidate out even though it serves
// the model.
func TestPipelinePrivacyPolicyExcludesCloudBackend(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{
		ID: "cloud", Status: registry.StatusHealthy, Models: []registry.Model{{ID: "sensitive-model"}},
	}, newStubAgent("cloud", agent.ZoneOpen, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{
		ID: "local", Status: registry.StatusHealthy, Models: []registry.Model{{ID: "sensitive-model"}},
	}, newStubAgent("local", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.UpdateModels("cloud", []registry.Model{{ID: "sensitive-model"}}))
	require.NoError(t, reg.UpdateModels("local", []registry.Model{{ID: "sensitive-model"}}))

	matcher := NewPolicyMatcher([]TrafficPolicy{{ModelPattern: "sensitive-*", Privacy: PolicyRestricted}})
	p := NewPipeline(
		NewRequestAnalyzer(reg, nil),
		NewLifecycleReconciler(reg),
		NewPrivacyReconciler(reg, matcher),
		NewBudgetReconciler(reg, DefaultBudgetConfig(), NewState(), pricing.Default(), tokenizer.New()),
		NewTierReconciler(reg),
		NewSchedulerReconciler(reg, DefaultSchedulerConfig(), nil),
	)
	intent := NewIntent("req-4", "sensitive-model", RequestRequirements{}, "")
	decision := p.Run(context.Background(), intent)

	require.Equal(t, DecisionRoute, decision.Kind)
	require.Equal(t, "local", decision.AgentID)
}
