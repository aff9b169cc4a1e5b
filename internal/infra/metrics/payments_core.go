package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		chargesTotal,
		chargeDuration,
		revenueCentsTotal,
		vaultOpsTotal,
	)
}

var (
	chargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_charges_total",
			Help: "Provider charges by provider and normalized status (approved/declined/error).",
		},
		[]string{"provider", "status"},
	)

	chargeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_charge_duration_seconds",
			Help:    "Latency of outbound provider calls in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"provider", "op"},
	)

	revenueCentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_revenue_cents_total",
			Help: "Approved charge amounts in cents, labeled by currency.",
		},
		[]string{"currency"},
	)

	vaultOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_vault_operations_total",
			Help: "Vault create/update calls by provider, op and result.",
		},
		[]string{"provider", "op", "status"},
	)
)

func IncCharge(provider, status string) {
	chargesTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func ObserveProviderCall(provider, op string, d time.Duration) {
	chargeDuration.WithLabelValues(norm(provider), norm(op)).Observe(d.Seconds())
}

func AddRevenue(currency string, cents int64) {
	if cents <= 0 {
		return
	}
	revenueCentsTotal.WithLabelValues(norm(currency)).Add(float64(cents))
}

func IncVaultOp(provider, op, status string) {
	vaultOpsTotal.WithLabelValues(norm(provider), norm(op), norm(status)).Inc()
}
