// Package fleet implements the fleet intelligence analyzer: a sliding
// window of per-model request timestamps used to advise which models are
// worth pre-warming (§6.4 fleet.*, §9 "Fleet intelligence holds per-model
// timestamp lists capped to 30 days").
package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nexusfleet/nexus/internal/registry"
)

const windowDays = 30

// Config is the §6.4 fleet.* configuration block.
type Config struct {
	Enabled            bool
	MinSampleDays      int
	MinRequestCount    int
	AnalysisInterval   time.Duration
	MaxRecommendations int
}

func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MinSampleDays:      3,
		MinRequestCount:    10,
		AnalysisInterval:   5 * time.Minute,
		MaxRecommendations: 10,
	}
}

// Recommendation is one model worth advisory pre-warming. It is
// suggestion-first: TargetBackendIDs names where to pre-warm, but nothing
// executes automatically on it (operator approval required).
type Recommendation struct {
	ModelID          string   `json:"model_id"`
	RequestCount     int      `json:"request_count"`
	SampleDays       int      `json:"sample_days"`
	Score            float64  `json:"score"`
	TargetBackendIDs []string `json:"target_backend_ids"`
	Confidence       float64  `json:"confidence_score"`
	Reasoning        string   `json:"reasoning"`
}

// Tracker records request timestamps per model and analyzes them into
// recommendations on demand or on a background interval.
type Tracker struct {
	cfg Config
	reg *registry.Registry

	mu      sync.Mutex
	samples map[string][]time.Time

	cacheMu sync.RWMutex
	cached  []Recommendation
}

// New builds a Tracker. reg is consulted at analysis time to resolve
// eligible pre-warming targets and to apply hot-model protection; it may
// be nil in tests that only exercise the sampling/scoring math.
func New(cfg Config, reg *registry.Registry) *Tracker {
	return &Tracker{cfg: cfg, reg: reg, samples: make(map[string][]time.Time)}
}

// RecordRequest notes that a request for modelID happened now.
func (t *Tracker) RecordRequest(modelID string, now time.Time) {
	if !t.cfg.Enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples[modelID] = append(t.samples[modelID], now)
}

func (t *Tracker) prune(now time.Time) {
	cutoff := now.AddDate(0, 0, -windowDays)
	for model, times := range t.samples {
		kept := times[:0:0]
		for _, ts := range times {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(t.samples, model)
			continue
		}
		t.samples[model] = kept
	}
}

// Analyze recomputes recommendations from the current sample set.
func (t *Tracker) Analyze(now time.Time) []Recommendation {
	if !t.cfg.Enabled {
		return nil
	}
	t.mu.Lock()
	t.prune(now)
	type stat struct {
		count int
		first time.Time
	}
	stats := make(map[string]stat, len(t.samples))
	for model, times := range t.samples {
		first := times[0]
		for _, ts := range times {
			if ts.Before(first) {
				first = ts
			}
		}
		stats[model] = stat{count: len(times), first: first}
	}
	t.mu.Unlock()

	var recs []Recommendation
	for model, s := range stats {
		sampleDays := int(now.Sub(s.first).Hours()/24) + 1
		if sampleDays < t.cfg.MinSampleDays || s.count < t.cfg.MinRequestCount {
			continue
		}

		targets := t.eligibleBackends(model)
		if t.reg != nil && len(targets) == 0 {
			continue
		}
		if t.isHotModel(model) {
			continue
		}

		score := float64(s.count) / float64(sampleDays)
		recs = append(recs, Recommendation{
			ModelID:          model,
			RequestCount:     s.count,
			SampleDays:       sampleDays,
			Score:            score,
			TargetBackendIDs: targets,
			Confidence:       confidenceFromScore(score, t.cfg.MinRequestCount),
			Reasoning:        fmt.Sprintf("based on %d requests over %d days", s.count, sampleDays),
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].ModelID < recs[j].ModelID
	})

	if t.cfg.MaxRecommendations > 0 && len(recs) > t.cfg.MaxRecommendations {
		recs = recs[:t.cfg.MaxRecommendations]
	}
	return recs
}

// eligibleBackends finds healthy backends that don't already serve model
// and have no lifecycle operation in flight, i.e. backends that could
// actually take a pre-warm without disrupting something else.
func (t *Tracker) eligibleBackends(model string) []string {
	if t.reg == nil {
		return nil
	}
	var eligible []string
	for _, b := range t.reg.GetAllBackends() {
		if b.Status != registry.StatusHealthy {
			continue
		}
		if b.CurrentOperation != nil && b.CurrentOperation.Status == registry.OpInProgress {
			continue
		}
		if hasModel(b, model) {
			continue
		}
		eligible = append(eligible, b.ID)
	}
	return eligible
}

// isHotModel reports whether model is already loaded on a healthy
// backend; hot models are never recommended for pre-warming elsewhere.
func (t *Tracker) isHotModel(model string) bool {
	if t.reg == nil {
		return false
	}
	for _, b := range t.reg.GetAllBackends() {
		if b.Status == registry.StatusHealthy && hasModel(b, model) {
			return true
		}
	}
	return false
}

func hasModel(b registry.Backend, model string) bool {
	for _, m := range b.Models {
		if m.ID == model {
			return true
		}
	}
	return false
}

// confidenceFromScore maps the request-rate score onto [0,1], scaled by
// how far past the minimum sample threshold the model is.
func confidenceFromScore(score float64, minRequestCount int) float64 {
	if minRequestCount <= 0 {
		minRequestCount = 1
	}
	c := score / (float64(minRequestCount) / 2)
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

// Recommendations returns the last cached analysis; empty until the
// background loop (or a manual Analyze) has run at least once.
func (t *Tracker) Recommendations() []Recommendation {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	return t.cached
}

// Run periodically recomputes and caches recommendations at
// AnalysisInterval until ctx is cancelled (§5 "fleet intelligence
// analyzer" background task).
func (t *Tracker) Run(ctx context.Context) {
	if !t.cfg.Enabled {
		return
	}
	interval := t.cfg.AnalysisInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			recs := t.Analyze(now)
			t.cacheMu.Lock()
			t.cached = recs
			t.cacheMu.Unlock()
		}
	}
}
