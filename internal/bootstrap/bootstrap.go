// Package bootstrap wires every Nexus component together from a loaded
// configuration and runs the process until signalled to stop, mirroring
// the teacher's cmd/server/main.go lifecycle (logging setup, background
// loops, graceful HTTP drain on SIGINT/SIGTERM).
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/config"
	"github.com/nexusfleet/nexus/internal/discovery"
	"github.com/nexusfleet/nexus/internal/fleet"
	"github.com/nexusfleet/nexus/internal/gateway"
	"github.com/nexusfleet/nexus/internal/health"
	"github.com/nexusfleet/nexus/internal/pricing"
	"github.com/nexusfleet/nexus/internal/registry"
	"github.com/nexusfleet/nexus/internal/routing"
	"github.com/nexusfleet/nexus/internal/telemetry"
	"github.com/nexusfleet/nexus/internal/tokenizer"
)

// App holds every long-lived component started from a single Config.
type App struct {
	cfg       config.Config
	Registry  *registry.Registry
	Gateway   *gateway.Gateway
	Health    *health.Checker
	Discovery *discovery.Discoverer
	Fleet     *fleet.Tracker
	Budget    *routing.BudgetReconciler
}

// New builds every component from cfg but starts nothing yet.
func New(cfg config.Config) (*App, error) {
	configureLogging(cfg.Logging)

	reg := registry.New()
	httpClient := agent.NewHTTPClient()

	for _, b := range cfg.Backends {
		apiKey := ""
		if b.APIKeyEnv != "" {
			apiKey = os.Getenv(b.APIKeyEnv)
		}
		a, err := agent.Build(b.Type, agent.Config{
			ID: b.Name, Name: b.Name, BaseURL: b.URL, APIKey: apiKey, HTTPClient: httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("build backend %s: %w", b.Name, err)
		}
		if err := reg.AddBackendWithAgent(registry.Backend{
			ID: b.Name, Name: b.Name, BaseURL: b.URL, Type: b.Type, Priority: b.Priority,
			DiscoverySource: registry.SourceStatic, Status: registry.StatusUnknown,
		}, a); err != nil {
			return nil, fmt.Errorf("register backend %s: %w", b.Name, err)
		}
	}

	policies := make([]routing.TrafficPolicy, 0, len(cfg.Routing.Policies))
	for _, p := range cfg.Routing.Policies {
		policies = append(policies, routing.TrafficPolicy{
			ModelPattern: p.ModelPattern, Privacy: routing.PolicyPrivacy(p.Privacy),
			MaxCostPerRequest: p.MaxCostPerRequest, MinTier: p.MinTier, FallbackAllowed: p.FallbackAllowed,
		})
	}

	budgetState := routing.NewState()
	budgetCfg := routing.BudgetConfig{
		MonthlyLimitUSD:        cfg.Budget.MonthlyLimitUSD,
		SoftLimitPercent:       cfg.Budget.SoftLimitPercent,
		HardLimitAction:        routing.HardLimitAction(cfg.Budget.HardLimitAction),
		ReconciliationInterval: config.Seconds(cfg.Budget.ReconciliationIntervalSecs),
	}
	budgetReconciler := routing.NewBudgetReconciler(reg, budgetCfg, budgetState, pricing.Default(), tokenizer.New())

	schedCfg := routing.SchedulerConfig{
		Strategy:               routing.Strategy(cfg.Routing.Strategy),
		Weights:                cfg.Routing.Weights,
		TTFTPenaltyThresholdMs: cfg.Quality.TTFTPenaltyThresholdMs,
	}

	pipeline := routing.NewPipeline(
		routing.NewRequestAnalyzer(reg, cfg.Routing.Aliases),
		routing.NewLifecycleReconciler(reg),
		routing.NewPrivacyReconciler(reg, routing.NewPolicyMatcher(policies)),
		budgetReconciler,
		routing.NewTierReconciler(reg),
		routing.NewSchedulerReconciler(reg, schedCfg, nil),
	)

	fleetTracker := fleet.New(fleet.Config{
		Enabled: cfg.Fleet.Enabled, MinSampleDays: cfg.Fleet.MinSampleDays, MinRequestCount: cfg.Fleet.MinRequestCount,
		AnalysisInterval: config.Seconds(cfg.Fleet.AnalysisIntervalSeconds), MaxRecommendations: cfg.Fleet.MaxRecommendations,
	}, reg)

	var checker *health.Checker
	if cfg.HealthCheck.Enabled {
		checker = health.New(reg, health.Config{
			Interval: config.Seconds(cfg.HealthCheck.IntervalSeconds), Timeout: config.Seconds(cfg.HealthCheck.TimeoutSeconds),
			FailureThreshold: cfg.HealthCheck.FailureThreshold, RecoveryThreshold: cfg.HealthCheck.RecoveryThreshold,
			MaxConcurrentChecks: 32,
		})
	}

	var disco *discovery.Discoverer
	if cfg.Discovery.Enabled {
		disco = discovery.New(reg, discovery.Config{
			ServiceTypes: cfg.Discovery.ServiceTypes, Domain: "local.",
			GracePeriod: config.Seconds(cfg.Discovery.GracePeriodSeconds), CleanupInterval: 10 * time.Second, BrowseTimeout: 30 * time.Second,
		})
	}

	gw := gateway.New(gateway.Config{
		Host: cfg.Server.Host, Port: cfg.Server.Port,
		RequestTimeout: config.Seconds(cfg.Server.RequestTimeoutSeconds), InferenceTimeout: 120 * time.Second,
		MaxRetries: cfg.Routing.MaxRetries, MaxBodyBytes: 10 << 20,
		EnableContentLogging: cfg.Logging.EnableContentLogging,
		RateLimit: gateway.RateLimitConfig{
			Enabled: cfg.RateLimit.Enabled, RequestsPerSecond: cfg.RateLimit.RequestsPerSecond, Burst: cfg.RateLimit.Burst,
		},
	}, reg, pipeline, fleetTracker, budgetState)

	return &App{cfg: cfg, Registry: reg, Gateway: gw, Health: checker, Discovery: disco, Fleet: fleetTracker, Budget: budgetReconciler}, nil
}

func configureLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format == "pretty" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// Run starts every background loop and the HTTP server, blocking until
// ctx is cancelled or a SIGINT/SIGTERM is received, then drains
// in-flight requests before returning.
func (a *App) Run(ctx context.Context) error {
	shutdown, err := telemetry.Init(telemetry.Config{
		Enabled: a.cfg.Telemetry.Enabled, OTLPEndpoint: a.cfg.Telemetry.OTLPEndpoint, ServiceName: a.cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.Background())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.Health != nil {
		go a.Health.Run(runCtx)
	}
	if a.Discovery != nil {
		go func() {
			if err := a.Discovery.Run(runCtx); err != nil {
				log.Error().Err(err).Msg("discovery loop stopped")
			}
		}()
	}
	go a.Budget.RunSweep(runCtx)
	go a.Fleet.Run(runCtx)

	srv := a.Gateway.Server()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		log.Info().Msg("shutting down")
		cancel()
		if err := a.Gateway.Shutdown(context.Background(), srv, 15*time.Second); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("nexus gateway listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
