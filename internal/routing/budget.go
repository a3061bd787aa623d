package routing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/metrics"
	"github.com/nexusfleet/nexus/internal/pricing"
	"github.com/nexusfleet/nexus/internal/registry"
	"github.com/nexusfleet/nexus/internal/tokenizer"
)

// HardLimitAction names the BudgetReconciler's response once spending
// reaches the monthly limit.
type HardLimitAction string

const (
	HardLimitWarn       HardLimitAction = "warn"
	HardLimitBlockCloud HardLimitAction = "block_cloud"
	HardLimitBlockAll   HardLimitAction = "block_all"
)

// BudgetConfig is the §6.4 budget.* configuration block.
type BudgetConfig struct {
	MonthlyLimitUSD        *float64
	SoftLimitPercent       float64
	HardLimitAction        HardLimitAction
	ReconciliationInterval time.Duration
}

func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		SoftLimitPercent:       75,
		HardLimitAction:        HardLimitWarn,
		ReconciliationInterval: 60 * time.Second,
	}
}

// State is the single global budget bucket (§4.5.4 / §9): process-wide,
// scoped to the current month, with a CAS-free mutex since exactness
// under contention is not required ("loss of a penny is acceptable").
type State struct {
	mu              sync.Mutex
	currentSpending float64
	monthKey        string
}

func NewState() *State {
	return &State{monthKey: monthKey(time.Now())}
}

func monthKey(t time.Time) string { return t.Format("2006-01") }

func (s *State) rolloverLocked() {
	key := monthKey(time.Now())
	if key != s.monthKey {
		log.Info().Str("previous_month", s.monthKey).Str("new_month", key).Float64("reset_spending", s.currentSpending).Msg("budget month rollover")
		s.currentSpending = 0
		s.monthKey = key
	}
}

func (s *State) AddSpending(amount float64) {
	s.mu.Lock()
	s.rolloverLocked()
	s.currentSpending += amount
	s.mu.Unlock()
}

func (s *State) Snapshot() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked()
	return s.currentSpending
}

// BudgetReconciler estimates cost and evaluates the global budget status,
// failing closed on any internal error (§4.5.4).
type BudgetReconciler struct {
	reg       *registry.Registry
	cfg       BudgetConfig
	state     *State
	pricing   pricing.Lookup
	tokenizer tokenizer.Registry
}

func NewBudgetReconciler(reg *registry.Registry, cfg BudgetConfig, state *State, lookup pricing.Lookup, tok tokenizer.Registry) *BudgetReconciler {
	return &BudgetReconciler{reg: reg, cfg: cfg, state: state, pricing: lookup, tokenizer: tok}
}

func (b *BudgetReconciler) Name() string { return "budget" }

func (b *BudgetReconciler) Reconcile(ctx context.Context, intent *RoutingIntent) error {
	inputTokens := intent.Requirements.EstimatedTokens
	tier := tokenizer.TierHeuristic
	if intent.Requirements.RequestText != "" {
		count, t := b.tokenizer.CountTokens(intent.ResolvedModel, intent.Requirements.RequestText)
		inputTokens = count
		tier = t
	}
	outputEstimate := inputTokens / 2
	cost := b.pricing.EstimateCost(intent.ResolvedModel, inputTokens, outputEstimate)
	intent.CostEstimate = CostEstimate{
		InputTokens:          inputTokens,
		OutputTokensEstimate: outputEstimate,
		CostUSD:              cost,
		Tier:                 tier,
	}

	if b.cfg.MonthlyLimitUSD == nil {
		intent.BudgetStatus = BudgetNormal
		return nil
	}

	limit := *b.cfg.MonthlyLimitUSD
	spending := b.state.Snapshot()
	pct := 0.0
	if limit > 0 {
		pct = spending / limit * 100
	}
	switch {
	case pct >= 100:
		intent.BudgetStatus = BudgetHardLimit
	case pct >= b.cfg.SoftLimitPercent:
		intent.BudgetStatus = BudgetSoftLimit
	default:
		intent.BudgetStatus = BudgetNormal
	}

	if intent.BudgetStatus != BudgetHardLimit {
		// SoftLimit does not exclude; the scheduler halves Open-zone scores.
		return nil
	}

	switch b.cfg.HardLimitAction {
	case HardLimitWarn:
		log.Warn().Str("model", intent.ResolvedModel).Msg("monthly budget hard limit reached, warn-only")
	case HardLimitBlockCloud:
		kept := intent.CandidateAgents[:0:0]
		for _, id := range intent.CandidateAgents {
			a, err := b.reg.GetAgent(id)
			if err != nil {
				intent.exclude(id, b.Name(), "agent unavailable: failing closed under hard budget limit", "none")
				continue
			}
			if a.Profile().PrivacyZone == agent.ZoneOpen {
				intent.exclude(id, b.Name(), "hard budget limit reached: cloud backends blocked", "wait for month rollover or raise monthly_limit_usd")
				continue
			}
			kept = append(kept, id)
		}
		intent.CandidateAgents = kept
	case HardLimitBlockAll:
		for _, id := range intent.CandidateAgents {
			intent.exclude(id, b.Name(), "hard budget limit reached: all backends blocked", "wait for month rollover or raise monthly_limit_usd")
		}
		intent.CandidateAgents = nil
	}
	return nil
}

// RunSweep periodically checks rollover and republishes budget gauges
// even when no traffic flows (§4.5.4 "separate reconciliation loop").
func (b *BudgetReconciler) RunSweep(ctx context.Context) {
	interval := b.cfg.ReconciliationInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweepOnce()
		}
	}
}

func (b *BudgetReconciler) sweepOnce() {
	spending := b.state.Snapshot()
	metrics.BudgetSpendingUSD.Set(spending)
	if b.cfg.MonthlyLimitUSD == nil {
		metrics.BudgetLimitUSD.Set(0)
		metrics.BudgetUtilizationPercent.Set(0)
		metrics.BudgetStatus.Set(metrics.BudgetStatusNormal)
		return
	}
	limit := *b.cfg.MonthlyLimitUSD
	metrics.BudgetLimitUSD.Set(limit)
	pct := 0.0
	if limit > 0 {
		pct = spending / limit * 100
	}
	metrics.BudgetUtilizationPercent.Set(pct)
	switch {
	case pct >= 100:
		metrics.BudgetStatus.Set(metrics.BudgetStatusHardLimit)
	case pct >= b.cfg.SoftLimitPercent:
		metrics.BudgetStatus.Set(metrics.BudgetStatusSoftLimit)
	default:
		metrics.BudgetStatus.Set(metrics.BudgetStatusNormal)
	}
}
