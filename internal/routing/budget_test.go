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

func limitOf(v float64) *float64 { return &v }

func TestBudgetReconcilerNoLimitIsNormal(t *testing.T) {
	reg := registry.New()
	cfg := DefaultBudgetConfig()
	b := NewBudgetReconciler(reg, cfg, NewState(), pricing.Default(), tokenizer.New())

	intent := NewIntent("r1", "gpt-4o", RequestRequirements{EstimatedTokens: 1000}, "")
	intent.ResolvedModel = "gpt-4o"
	require.NoError(t, b.Reconcile(context.Background(), intent))
	require.Equal(t, BudgetNormal, intent.BudgetStatus)
	require.Greater(t, intent.CostEstimate.CostUSD, 0.0)
}

func TestBudgetReconcilerSoftLimitDoesNotExclude(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "cloud1", Type: "openai"}, newStubAgent("cloud1", agent.ZoneOpen, 1)))

	cfg := DefaultBudgetConfig()
	cfg.MonthlyLimitUSD = limitOf(10)
	state := NewState()
	state.AddSpending(8) // 80% of limit, above the 75% soft threshold

	b := NewBudgetReconciler(reg, cfg, state, pricing.Default(), tokenizer.New())
	intent := NewIntent("r1", "gpt-4o", RequestRequirements{EstimatedTokens: 100}, "")
	intent.ResolvedModel = "gpt-4o"
	intent.CandidateAgents = []string{"cloud1"}

	require.NoError(t, b.Reconcile(context.Background(), intent))
	require.Equal(t, BudgetSoftLimit, intent.BudgetStatus)
	require.Equal(t, []string{"cloud1"}, intent.CandidateAgents)
}

func TestBudgetReconcilerHardLimitBlockCloud(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "cloud1", Type: "openai"}, newStubAgent("cloud1", agent.ZoneOpen, 1)))
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "local1", Type: "ollama"}, newStubAgent("local1", agent.ZoneRestricted, 1)))

	cfg := DefaultBudgetConfig()
	cfg.MonthlyLimitUSD = limitOf(10)
	cfg.HardLimitAction = HardLimitBlockCloud
	state := NewState()
	state.AddSpending(10)

	b := NewBudgetReconciler(reg, cfg, state, pricing.Default(), tokenizer.New())
	intent := NewIntent("r1", "gpt-4o", RequestRequirements{EstimatedTokens: 100}, "")
	intent.ResolvedModel = "gpt-4o"
	intent.CandidateAgents = []string{"cloud1", "local1"}

	require.NoError(t, b.Reconcile(context.Background(), intent))
	require.Equal(t, BudgetHardLimit, intent.BudgetStatus)
	require.Equal(t, []string{"local1"}, intent.CandidateAgents)
	require.Len(t, intent.RejectionReasons, 1)
}

func TestBudgetReconcilerHardLimitBlockAll(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.AddBackendWithAgent(registry.Backend{ID: "local1", Type: "ollama"}, newStubAgent("local1", agent.ZoneRestricted, 1)))

	cfg := DefaultBudgetConfig()
	cfg.MonthlyLimitUSD = limitOf(10)
	cfg.HardLimitAction = HardLimitBlockAll
	state := NewState()
	state.AddSpending(10)

	b := NewBudgetReconciler(reg, cfg, state, pricing.Default(), tokenizer.New())
	intent := NewIntent("r1", "gpt-4o", RequestRequirements{EstimatedTokens: 100}, "")
	intent.ResolvedModel = "gpt-4o"
	intent.CandidateAgents = []string{"local1"}

	require.NoError(t, b.Reconcile(context.Background(), intent))
	require.Empty(t, intent.CandidateAgents)
}

func TestBudgetStateMonthRollover(t *testing.T) {
	s := &State{monthKey: "2000-01", currentSpending: 42}
	require.Equal(t, 0.0, s.Snapshot(), "a stale month key must reset spending on read")
}
