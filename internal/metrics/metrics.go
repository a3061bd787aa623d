// Package metrics registers the Prometheus series the Health Checker and
// Budget Reconciler populate. The exporter wiring itself is the thin
// contract surface named out of scope in §1; this registration point is
// the infrastructure those in-scope components need to exist at all.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackendLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexus_backend_latency_seconds",
		Help:    "Observed latency of backend health probes and chat completions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})

	BudgetSpendingUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexus_budget_spending_usd",
		Help: "Current month's accumulated spend in USD.",
	})

	BudgetUtilizationPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexus_budget_utilization_percent",
		Help: "Current spend as a percentage of the monthly limit.",
	})

	BudgetStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexus_budget_status",
		Help: "Budget status: 0=normal, 1=soft_limit, 2=hard_limit.",
	})

	BudgetLimitUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexus_budget_limit_usd",
		Help: "Configured monthly budget limit in USD, 0 if unset.",
	})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_requests_total",
		Help: "Total chat/embeddings requests by outcome.",
	}, []string{"outcome"})
)

// ObserveBackendLatency records one latency sample in seconds for backend id.
func ObserveBackendLatency(backendID string, seconds float64) {
	BackendLatencySeconds.WithLabelValues(backendID).Observe(seconds)
}

const (
	BudgetStatusNormal    = 0
	BudgetStatusSoftLimit = 1
	BudgetStatusHardLimit = 2
)
