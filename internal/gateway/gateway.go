// Package gateway implements the HTTP surface (§4.6): OpenAI-compatible
// chat/embeddings/models endpoints, transparent routing headers, and the
// lifecycle/fleet management routes, all driven by the routing pipeline.
package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nexusfleet/nexus/internal/fleet"
	"github.com/nexusfleet/nexus/internal/registry"
	"github.com/nexusfleet/nexus/internal/routing"
)

// Config is the §6.4 server.* configuration block.
type Config struct {
	Host                 string
	Port                 int
	RequestTimeout       time.Duration
	InferenceTimeout     time.Duration
	MaxRetries           int
	MaxBodyBytes         int64
	EnableContentLogging bool
	RateLimit            RateLimitConfig
}

func DefaultConfig() Config {
	return Config{
		Host:             "0.0.0.0",
		Port:             8080,
		RequestTimeout:   5 * time.Second,
		InferenceTimeout: 120 * time.Second,
		MaxRetries:       2,
		MaxBodyBytes:     10 << 20,
		RateLimit:        DefaultRateLimitConfig(),
	}
}

// Gateway wires the Backend Registry and routing Pipeline to an HTTP
// server.
type Gateway struct {
	cfg          Config
	reg          *registry.Registry
	pipeline     *routing.Pipeline
	fleetTracker *fleet.Tracker
	budget       *routing.State
	startedAt    time.Time
}

func New(cfg Config, reg *registry.Registry, pipeline *routing.Pipeline, fleetTracker *fleet.Tracker, budget *routing.State) *Gateway {
	return &Gateway{cfg: cfg, reg: reg, pipeline: pipeline, fleetTracker: fleetTracker, budget: budget, startedAt: time.Now()}
}

// recordSpending adds a served request's estimated cost to the monthly
// budget bucket (§4.5.4 "tracked after routing decision").
func (g *Gateway) recordSpending(costUSD float64) {
	if g.budget != nil {
		g.budget.AddSpending(costUSD)
	}
}

// Server builds the *http.Server ready to ListenAndServe, wrapping the
// router with the configured address and no further options: timeouts
// are enforced per-request via context, not at the net/http server level,
// since inference requests legitimately run far longer than list/health
// calls.
func (g *Gateway) Server() *http.Server {
	return &http.Server{
		Addr:    g.addr(),
		Handler: g.Router(),
	}
}

func (g *Gateway) addr() string {
	if g.cfg.Host == "" {
		return ":" + strconv.Itoa(g.cfg.Port)
	}
	return g.cfg.Host + ":" + strconv.Itoa(g.cfg.Port)
}

// Shutdown drains in-flight requests up to deadline (§5 "graceful-drain
// deadline").
func (g *Gateway) Shutdown(ctx context.Context, srv *http.Server, deadline time.Duration) error {
	drainCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	return srv.Shutdown(drainCtx)
}
