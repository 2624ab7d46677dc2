package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for idempotency operations.
var (
	idempotencyStoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_stores_total",
			Help: "Total number of idempotency store operations",
		},
		[]string{"outcome"},
	)

	idempotencyHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_lookups_total",
			Help: "Total number of idempotency cache lookups",
		},
		[]string{"outcome"},
	)

	idempotencySweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotency_swept_records_total",
			Help: "Total number of expired idempotency records purged",
		},
	)
)
