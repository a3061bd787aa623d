// Package health implements the Health Checker: periodic fleet probing
// with hysteresis-based status transitions and model-list reconciliation
// (§4.3).
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rs/zerolog/log"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/metrics"
	"github.com/nexusfleet/nexus/internal/registry"
)

// Config tunes the checker's cadence and hysteresis thresholds.
type Config struct {
	Interval            time.Duration
	Timeout             time.Duration
	FailureThreshold    int
	RecoveryThreshold   int
	MaxConcurrentChecks int64
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		Interval:            30 * time.Second,
		Timeout:             5 * time.Second,
		FailureThreshold:    3,
		RecoveryThreshold:   2,
		MaxConcurrentChecks: 32,
	}
}

// state is the per-backend BackendHealthState held outside the Backend
// (§3.1), to isolate transition logic from the registry's own data.
type state struct {
	consecutiveFailures  int
	consecutiveSuccesses int
	lastStatus           registry.Status
	lastModels           []registry.Model
}

// Checker runs the periodic probing loop.
type Checker struct {
	cfg      Config
	reg      *registry.Registry
	mu       sync.Mutex
	states   map[string]*state
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(reg *registry.Registry, cfg Config) *Checker {
	return &Checker{
		cfg:    cfg,
		reg:    reg,
		states: make(map[string]*state),
		stopCh: make(chan struct{}),
	}
}

// Run blocks, ticking at cfg.Interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// Stop terminates a running loop; safe to call multiple times.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// RunOnce executes one probe cycle across every registered backend,
// bounded to cfg.MaxConcurrentChecks concurrent outbound probes.
func (c *Checker) RunOnce(ctx context.Context) {
	backends := c.reg.GetAllBackends()
	sem := semaphore.NewWeighted(c.cfg.MaxConcurrentChecks)
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range backends {
		b := b
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			c.checkOne(gctx, b)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Checker) checkOne(ctx context.Context, b registry.Backend) {
	a, err := c.reg.GetAgent(b.ID)
	if err != nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	result, probeErr := a.HealthCheck(probeCtx)

	c.mu.Lock()
	st, ok := c.states[b.ID]
	if !ok {
		st = &state{lastStatus: registry.StatusUnknown}
		c.states[b.ID] = st
	}
	c.mu.Unlock()

	metrics.ObserveBackendLatency(b.ID, float64(result.LatencyMs)/1000.0)

	if probeErr != nil {
		c.applyFailure(b.ID, st, probeErr.Error())
		return
	}
	c.applySuccess(b.ID, st, result, a)
}

func (c *Checker) applySuccess(id string, st *state, result agent.HealthResult, a agent.Agent) {
	c.mu.Lock()
	st.consecutiveFailures = 0
	st.consecutiveSuccesses++
	prevStatus := st.lastStatus
	newStatus := prevStatus
	switch prevStatus {
	case registry.StatusUnknown:
		newStatus = registry.StatusHealthy
	case registry.StatusUnhealthy:
		if st.consecutiveSuccesses >= c.cfg.RecoveryThreshold {
			newStatus = registry.StatusHealthy
		}
	}
	st.lastStatus = newStatus

	models := toRegistryModels(result.Models)
	if result.ParseError == "" && len(result.Models) > 0 {
		st.lastModels = models
	}
	restoreModels := st.lastModels
	c.mu.Unlock()

	_ = c.reg.UpdateLatency(id, uint32(result.LatencyMs))
	if newStatus != prevStatus {
		_ = c.reg.UpdateStatus(id, newStatus, "")
		log.Info().Str("backend", id).Str("status", string(newStatus)).Msg("health status transition")
	}
	if result.ParseError == "" {
		if len(result.Models) > 0 {
			_ = c.reg.UpdateModels(id, models)
		}
	} else {
		// SuccessWithParseError: the backend is up, restore last known models.
		_ = c.reg.UpdateModels(id, restoreModels)
		log.Warn().Str("backend", id).Str("error", result.ParseError).Msg("health probe parse error")
	}
}

func (c *Checker) applyFailure(id string, st *state, errMsg string) {
	c.mu.Lock()
	st.consecutiveSuccesses = 0
	st.consecutiveFailures++
	prevStatus := st.lastStatus
	newStatus := prevStatus
	switch prevStatus {
	case registry.StatusUnknown:
		newStatus = registry.StatusUnhealthy
	case registry.StatusHealthy:
		if st.consecutiveFailures >= c.cfg.FailureThreshold {
			newStatus = registry.StatusUnhealthy
		}
	}
	st.lastStatus = newStatus
	c.mu.Unlock()

	if newStatus != prevStatus {
		_ = c.reg.UpdateStatus(id, newStatus, errMsg)
		log.Warn().Str("backend", id).Str("status", string(newStatus)).Str("error", errMsg).Msg("health status transition")
	}
	// Failure: models are left untouched, they are still "believed".
}

func toRegistryModels(in []agent.DiscoveredModel) []registry.Model {
	out := make([]registry.Model, len(in))
	for i, m := range in {
		out[i] = registry.Model{
			ID:               m.ID,
			Name:             m.Name,
			ContextLength:    m.ContextLength,
			SupportsVision:   m.SupportsVision,
			SupportsTools:    m.SupportsTools,
			SupportsJSONMode: m.SupportsJSONMode,
			MaxOutputTokens:  m.MaxOutputTokens,
		}
	}
	return out
}
