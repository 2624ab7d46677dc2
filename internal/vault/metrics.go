package vault

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for vault operations.
var (
	vaultOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_operations_total",
			Help: "Total number of credential vault operations",
		},
		[]string{"operation", "status"},
	)

	vaultKeyVersions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_key_versions",
			Help: "Number of key versions currently held in the key table",
		},
	)
)
