package routing

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync/atomic"
	"time"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/registry"
)

// Strategy selects how the SchedulerReconciler picks among capable
// candidates (§4.5.6).
type Strategy string

const (
	StrategySmart       Strategy = "smart"
	StrategyRoundRobin  Strategy = "round_robin"
	StrategyPriorityOnly Strategy = "priority_only"
	StrategyRandom      Strategy = "random"
)

// Weights scales the Smart strategy's three score components.
type Weights struct {
	Priority float64
	Load     float64
	Latency  float64
}

func DefaultWeights() Weights {
	return Weights{Priority: 1, Load: 1, Latency: 1}
}

// SchedulerConfig is the §6.4 routing.* / quality.* configuration block
// relevant to final candidate selection.
type SchedulerConfig struct {
	Strategy               Strategy
	Weights                Weights
	TTFTPenaltyThresholdMs float64
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Strategy: StrategySmart, Weights: DefaultWeights(), TTFTPenaltyThresholdMs: 0}
}

// QualityProvider reports a per-backend quality signal, currently just
// average time-to-first-token. Absent data (ok == false) means no
// TTFT penalty is applied for that backend.
type QualityProvider interface {
	AvgTTFTMs(backendID string) (ms float64, ok bool)
}

// NoQualityData is the default QualityProvider when no TTFT tracking is
// wired in: every lookup reports "no data", so the penalty never fires.
type NoQualityData struct{}

func (NoQualityData) AvgTTFTMs(string) (float64, bool) { return 0, false }

// SchedulerReconciler is the pipeline's terminal stage: it drops anything
// unhealthy or context-incapable, then selects exactly one candidate by
// the configured strategy (§4.5.6).
type SchedulerReconciler struct {
	reg     *registry.Registry
	cfg     SchedulerConfig
	quality QualityProvider

	roundRobinCounter atomic.Uint64
	randomCounter     atomic.Uint64
}

func NewSchedulerReconciler(reg *registry.Registry, cfg SchedulerConfig, quality QualityProvider) *SchedulerReconciler {
	if quality == nil {
		quality = NoQualityData{}
	}
	return &SchedulerReconciler{reg: reg, cfg: cfg, quality: quality}
}

func (s *SchedulerReconciler) Name() string { return "scheduler" }

type candidate struct {
	id      string
	backend registry.Backend
	model   registry.Model
}

func (s *SchedulerReconciler) Reconcile(ctx context.Context, intent *RoutingIntent) error {
	var capable []candidate
	for _, id := range intent.CandidateAgents {
		b, err := s.reg.GetBackend(id)
		if err != nil {
			intent.exclude(id, s.Name(), "backend vanished mid-pipeline", "retry")
			continue
		}
		if b.Status != registry.StatusHealthy {
			intent.exclude(id, s.Name(), fmt.Sprintf("backend not healthy: %s", b.Status), "retry once healthy")
			continue
		}
		model, ok := findModel(b, intent.ResolvedModel)
		if ok && model.ContextLength > 0 && intent.Requirements.EstimatedTokens > int64(model.ContextLength) {
			intent.exclude(id, s.Name(), fmt.Sprintf("estimated tokens %d exceed context length %d", intent.Requirements.EstimatedTokens, model.ContextLength), "shorten the request or route elsewhere")
			continue
		}
		capable = append(capable, candidate{id: id, backend: b, model: model})
	}

	if len(capable) == 0 {
		intent.CandidateAgents = nil
		return nil
	}

	if len(capable) == 1 {
		intent.CandidateAgents = []string{capable[0].id}
		intent.RouteReason = "only_healthy_backend"
		return nil
	}

	var chosen candidate
	switch s.cfg.Strategy {
	case StrategyRoundRobin:
		idx := s.roundRobinCounter.Add(1) - 1
		sort.Slice(capable, func(i, j int) bool { return capable[i].id < capable[j].id })
		chosen = capable[idx%uint64(len(capable))]
		intent.RouteReason = fmt.Sprintf("round_robin:index_%d", idx%uint64(len(capable)))
	case StrategyPriorityOnly:
		chosen = capable[0]
		for _, c := range capable[1:] {
			if c.backend.Priority < chosen.backend.Priority {
				chosen = c
			}
		}
		intent.RouteReason = fmt.Sprintf("priority:%s:%d", chosen.id, chosen.backend.Priority)
	case StrategyRandom:
		n := s.randomCounter.Add(1)
		h := fnv.New32a()
		fmt.Fprintf(h, "%s-%d-%d", intent.RequestID, n, time.Duration(n))
		idx := int(h.Sum32()) % len(capable)
		if idx < 0 {
			idx += len(capable)
		}
		chosen = capable[idx]
		intent.RouteReason = fmt.Sprintf("random:%s", chosen.id)
	default: // Smart
		bestScore := -1.0
		for _, c := range capable {
			score := s.smartScore(c, intent)
			if score > bestScore {
				bestScore = score
				chosen = c
			}
		}
		intent.RouteReason = fmt.Sprintf("highest_score:%s:%.4f", chosen.id, bestScore)
	}

	intent.CandidateAgents = []string{chosen.id}
	return nil
}

func inv(x float64) float64 {
	if x <= 0 {
		return 1
	}
	return 1 / x
}

func (s *SchedulerReconciler) smartScore(c candidate, intent *RoutingIntent) float64 {
	w := s.cfg.Weights
	priority := float64(c.backend.Priority)
	if priority <= 0 {
		priority = 1
	}
	score := w.Priority*inv(priority) + w.Load*inv(float64(c.backend.PendingRequests)+1) + w.Latency*inv(float64(c.backend.AvgLatencyMs)+1)

	if intent.BudgetStatus == BudgetSoftLimit {
		a, err := s.reg.GetAgent(c.id)
		if err == nil && a.Profile().PrivacyZone == agent.ZoneOpen {
			score /= 2
		}
	}

	if ttft, ok := s.quality.AvgTTFTMs(c.id); ok && s.cfg.TTFTPenaltyThresholdMs > 0 && ttft > s.cfg.TTFTPenaltyThresholdMs {
		ratio := (ttft - s.cfg.TTFTPenaltyThresholdMs) / s.cfg.TTFTPenaltyThresholdMs
		if ratio > 1 {
			ratio = 1
		}
		score -= score * ratio
	}

	return score
}
