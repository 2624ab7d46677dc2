package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for router operations.
var (
	providerAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_provider_attempts_total",
			Help: "Total number of provider attempts",
		},
		[]string{"provider", "action", "status"},
	)

	providerAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_provider_attempt_duration_seconds",
			Help:    "Duration of provider attempts in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "action"},
	)

	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_executions_total",
			Help: "Total number of fallback executions",
		},
		[]string{"category", "status"},
	)

	breakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_breaker_transitions_total",
			Help: "Total number of provider circuit breaker state transitions",
		},
		[]string{"provider", "from", "to"},
	)
)
