// Package config loads Nexus's layered configuration: a YAML file,
// overridden by environment variables, overridden by CLI flags — exactly
// the precedence named in §6.4.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nexusfleet/nexus/internal/discovery"
	"github.com/nexusfleet/nexus/internal/fleet"
	"github.com/nexusfleet/nexus/internal/gateway"
	"github.com/nexusfleet/nexus/internal/health"
	"github.com/nexusfleet/nexus/internal/routing"
)

// ServerConfig is §6.4 server.*.
type ServerConfig struct {
	Host                  string  `yaml:"host"`
	Port                  int     `yaml:"port"`
	RequestTimeoutSeconds float64 `yaml:"request_timeout_seconds"`
}

// LoggingConfig is §6.4 logging.*.
type LoggingConfig struct {
	Level                string `yaml:"level"`
	Format               string `yaml:"format"`
	EnableContentLogging bool   `yaml:"enable_content_logging"`
}

// BackendSeed is one entry of §6.4 backends[].
type BackendSeed struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Type      string `yaml:"type"`
	Priority  int    `yaml:"priority"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// TrafficPolicySeed mirrors routing.TrafficPolicy for YAML decoding.
type TrafficPolicySeed struct {
	ModelPattern      string   `yaml:"model_pattern"`
	Privacy           string   `yaml:"privacy"`
	MaxCostPerRequest *float64 `yaml:"max_cost_per_request"`
	MinTier           int      `yaml:"min_tier"`
	FallbackAllowed   bool     `yaml:"fallback_allowed"`
}

// RoutingConfig is §6.4 routing.*.
type RoutingConfig struct {
	Strategy   string              `yaml:"strategy"`
	Weights    routing.Weights     `yaml:"weights"`
	Aliases    map[string]string   `yaml:"aliases"`
	Policies   []TrafficPolicySeed `yaml:"policies"`
	MaxRetries int                 `yaml:"max_retries"`
}

// HealthCheckConfig is §6.4 health_check.*.
type HealthCheckConfig struct {
	Enabled           bool    `yaml:"enabled"`
	IntervalSeconds   float64 `yaml:"interval_seconds"`
	TimeoutSeconds    float64 `yaml:"timeout_seconds"`
	FailureThreshold  int     `yaml:"failure_threshold"`
	RecoveryThreshold int     `yaml:"recovery_threshold"`
}

// DiscoveryConfig is §6.4 discovery.*.
type DiscoveryConfig struct {
	Enabled            bool     `yaml:"enabled"`
	ServiceTypes       []string `yaml:"service_types"`
	GracePeriodSeconds float64  `yaml:"grace_period_seconds"`
}

// BudgetConfig is §6.4 budget.*.
type BudgetConfig struct {
	MonthlyLimitUSD            *float64 `yaml:"monthly_limit_usd"`
	SoftLimitPercent           float64  `yaml:"soft_limit_percent"`
	HardLimitAction            string   `yaml:"hard_limit_action"`
	ReconciliationIntervalSecs float64  `yaml:"reconciliation_interval_secs"`
}

// QualityConfig is §6.4 quality.*.
type QualityConfig struct {
	TTFTPenaltyThresholdMs float64 `yaml:"ttft_penalty_threshold_ms"`
}

// FleetConfig is §6.4 fleet.*.
type FleetConfig struct {
	Enabled                 bool    `yaml:"enabled"`
	MinSampleDays           int     `yaml:"min_sample_days"`
	MinRequestCount         int     `yaml:"min_request_count"`
	AnalysisIntervalSeconds float64 `yaml:"analysis_interval_seconds"`
	MaxRecommendations      int     `yaml:"max_recommendations"`
}

// TelemetryConfig is the ambient-stack tracing block (§2).
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// RateLimitConfig is the gateway's optional per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Config holds every layer of Nexus's runtime configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Backends    []BackendSeed     `yaml:"backends"`
	Routing     RoutingConfig     `yaml:"routing"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Budget      BudgetConfig      `yaml:"budget"`
	Quality     QualityConfig     `yaml:"quality"`
	Fleet       FleetConfig       `yaml:"fleet"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
}

// Default returns every §6.4 default drawn from each package's own
// DefaultConfig, so config.go never drifts from the component it
// configures.
func Default() Config {
	gw := gateway.DefaultConfig()
	hc := health.DefaultConfig()
	disco := discovery.DefaultConfig()
	budget := routing.DefaultBudgetConfig()
	sched := routing.DefaultSchedulerConfig()
	fl := fleet.DefaultConfig()

	return Config{
		Server:  ServerConfig{Host: gw.Host, Port: gw.Port, RequestTimeoutSeconds: gw.RequestTimeout.Seconds()},
		Logging: LoggingConfig{Level: "info", Format: "pretty"},
		Routing: RoutingConfig{
			Strategy:   string(sched.Strategy),
			Weights:    sched.Weights,
			Aliases:    map[string]string{},
			MaxRetries: gw.MaxRetries,
		},
		HealthCheck: HealthCheckConfig{
			Enabled: true, IntervalSeconds: hc.Interval.Seconds(), TimeoutSeconds: hc.Timeout.Seconds(),
			FailureThreshold: hc.FailureThreshold, RecoveryThreshold: hc.RecoveryThreshold,
		},
		Discovery: DiscoveryConfig{
			Enabled: true, ServiceTypes: disco.ServiceTypes, GracePeriodSeconds: disco.GracePeriod.Seconds(),
		},
		Budget: BudgetConfig{
			SoftLimitPercent: budget.SoftLimitPercent, HardLimitAction: string(budget.HardLimitAction),
			ReconciliationIntervalSecs: budget.ReconciliationInterval.Seconds(),
		},
		Quality: QualityConfig{TTFTPenaltyThresholdMs: sched.TTFTPenaltyThresholdMs},
		Fleet: FleetConfig{
			Enabled: fl.Enabled, MinSampleDays: fl.MinSampleDays, MinRequestCount: fl.MinRequestCount,
			AnalysisIntervalSeconds: fl.AnalysisInterval.Seconds(), MaxRecommendations: fl.MaxRecommendations,
		},
		Telemetry: TelemetryConfig{Enabled: false, ServiceName: "nexus"},
		RateLimit: RateLimitConfig{Enabled: false, RequestsPerSecond: 5, Burst: 10},
	}
}

// Overrides carries CLI-flag values, highest precedence per §6.4.
type Overrides struct {
	Port          *int
	Host          *string
	LogLevel      *string
	NoDiscovery   bool
	NoHealthCheck bool
}

// Load builds a Config by layering a YAML file (if path is non-empty),
// environment variables, then CLI overrides, in that precedence order.
func Load(path string, overrides Overrides) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyOverrides(&cfg, overrides)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = envStr("NEXUS_HOST", cfg.Server.Host)
	cfg.Server.Port = envInt("NEXUS_PORT", cfg.Server.Port)
	cfg.Logging.Level = envStr("NEXUS_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envStr("NEXUS_LOG_FORMAT", cfg.Logging.Format)
	cfg.Discovery.Enabled = envBool("NEXUS_DISCOVERY_ENABLED", cfg.Discovery.Enabled)
	cfg.HealthCheck.Enabled = envBool("NEXUS_HEALTH_CHECK_ENABLED", cfg.HealthCheck.Enabled)
	cfg.Telemetry.Enabled = envBool("NEXUS_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Port != nil {
		cfg.Server.Port = *o.Port
	}
	if o.Host != nil {
		cfg.Server.Host = *o.Host
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.NoDiscovery {
		cfg.Discovery.Enabled = false
	}
	if o.NoHealthCheck {
		cfg.HealthCheck.Enabled = false
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// Seconds converts a YAML-friendly float-seconds field into a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
