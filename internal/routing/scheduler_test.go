package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/registry"
)

func TestSchedulerExcludesUnhealthyAndOverContext(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "unhealthy", Status: registry.StatusUnknown, Models: []registry.Model{{ID: "m1", ContextLength: 8000}}}, newStubAgent("unhealthy", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "tooSmall", Status: registry.StatusHealthy, Models: []registry.Model{{ID: "m1", ContextLength: 10}}}, newStubAgent("tooSmall", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "ok", Status: registry.StatusHealthy, Models: []registry.Model{{ID: "m1", ContextLength: 8000}}}, newStubAgent("ok", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.UpdateStatus("unhealthy", registry.StatusUnhealthy, "boom"))

	sched := NewSchedulerReconciler(reg, DefaultSchedulerConfig(), nil)
	intent := NewIntent("r1", "m1", RequestRequirements{EstimatedTokens: 500}, "")
	intent.ResolvedModel = "m1"
	intent.CandidateAgents = []string{"unhealthy", "tooSmall", "ok"}

	require.NoError(t, sched.Reconcile(context.Background(), intent))
	require.Equal(t, []string{"ok"}, intent.CandidateAgents)
	require.Equal(t, "only_healthy_backend", intent.RouteReason)
}

func TestSchedulerEmptyCandidatesStaysEmpty(t *testing.T) {
	reg := registry.New()
	sched := NewSchedulerReconciler(reg, DefaultSchedulerConfig(), nil)
	intent := NewIntent("r1", "m1", RequestRequirements{}, "")
	intent.ResolvedModel = "m1"
	require.NoError(t, sched.Reconcile(context.Background(), intent))
	require.Empty(t, intent.CandidateAgents)
}

func TestSchedulerSmartPrefersLowerLoadAndLatency(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "busy", Status: registry.StatusHealthy}, newStubAgent("busy", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "idle", Status: registry.StatusHealthy}, newStubAgent("idle", agent.ZoneRestricted, 1)))
	_, err := reg.IncrementPending("busy")
	require.NoError(t, err)
	_, err = reg.IncrementPending("busy")
	require.NoError(t, err)
	require.NoError(t, reg.UpdateLatency("busy", 900))
	require.NoError(t, reg.UpdateLatency("idle", 10))

	sched := NewSchedulerReconciler(reg, DefaultSchedulerConfig(), nil)
	intent := NewIntent("r1", "m1", RequestRequirements{}, "")
	intent.ResolvedModel = "m1"
	intent.CandidateAgents = []string{"busy", "idle"}

	require.NoError(t, sched.Reconcile(context.Background(), intent))
	require.Equal(t, []string{"idle"}, intent.CandidateAgents)
}

func TestSchedulerPriorityOnlyPicksLowestPriority(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "p5", Status: registry.StatusHealthy, Priority: 5}, newStubAgent("p5", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "p1", Status: registry.StatusHealthy, Priority: 1}, newStubAgent("p1", agent.ZoneRestricted, 1)))

	cfg := DefaultSchedulerConfig()
	cfg.Strategy = StrategyPriorityOnly
	sched := NewSchedulerReconciler(reg, cfg, nil)
	intent := NewIntent("r1", "m1", RequestRequirements{}, "")
	intent.ResolvedModel = "m1"
	intent.CandidateAgents = []string{"p5", "p1"}

	require.NoError(t, sched.Reconcile(context.Background(), intent))
	require.Equal(t, []string{"p1"}, intent.CandidateAgents)
}

func TestSchedulerRoundRobinCyclesDeterministically(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "a", Status: registry.StatusHealthy}, newStubAgent("a", agent.ZoneRestricted, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "b", Status: registry.StatusHealthy}, newStubAgent("b", agent.ZoneRestricted, 1)))

	cfg := DefaultSchedulerConfig()
	cfg.Strategy = StrategyRoundRobin
	sched := NewSchedulerReconciler(reg, cfg, nil)

	var picks []string
	for i := 0; i < 4; i++ {
		intent := NewIntent("r1", "m1", RequestRequirements{}, "")
		intent.ResolvedModel = "m1"
		intent.CandidateAgents = []string{"a", "b"}
		require.NoError(t, sched.Reconcile(context.Background(), intent))
		picks = append(picks, intent.CandidateAgents[0])
	}
	require.Equal(t, picks[0], picks[2])
	require.Equal(t, picks[1], picks[3])
	require.NotEqual(t, picks[0], picks[1])
}

func TestSchedulerSoftLimitHalvesOpenZoneScore(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "cloud", Status: registry.StatusHealthy}, newStubAgent("cloud", agent.ZoneOpen, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "local", Status: registry.StatusHealthy}, newStubAgent("local", agent.ZoneRestricted, 1)))
	// Identical load/latency; only the budget-status zone penalty should differ the outcome.
	sched := NewSchedulerReconciler(reg, DefaultSchedulerConfig(), nil)
	intent := NewIntent("r1", "m1", RequestRequirements{}, "")
	intent.ResolvedModel = "m1"
	intent.CandidateAgents = []string{"cloud", "local"}
	intent.BudgetStatus = BudgetSoftLimit

	require.NoError(t, sched.Reconcile(context.Background(), intent))
	require.Equal(t, []string{"local"}, intent.CandidateAgents)
}
