package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		transitionsTotal,
		consistencyErrorsTotal,
		driftCorrectedTotal,
	)
}

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_transitions_total",
			Help: "Applied subscription status transitions.",
		},
		[]string{"from", "to"},
	)

	// kind: vault_not_recorded|provider_cancel_failed|redeem_failed|row_update_failed
	consistencyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_consistency_errors_total",
			Help: "Partial failures that need reconciliation, by kind.",
		},
		[]string{"kind"},
	)

	driftCorrectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_drift_corrected_total",
			Help: "Business rows rewritten by the reconcile pass.",
		},
	)
)

func IncTransition(from, to string) {
	transitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func IncConsistencyError(kind string) {
	consistencyErrorsTotal.WithLabelValues(norm(kind)).Inc()
}

func AddDriftCorrected(n int) {
	driftCorrectedTotal.Add(float64(n))
}
