package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		webhooksTotal,
		webhookDuration,
	)
}

var (
	// outcome: applied|duplicate|ignored|unmatched|stale|bad_signature|bad_payload|error
	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhooks_total",
			Help: "Webhook deliveries by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_webhook_duration_seconds",
			Help:    "Duration of webhook handling in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"provider"},
	)
)

func IncWebhook(provider, outcome string) {
	webhooksTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func ObserveWebhook(provider string, d time.Duration) {
	webhookDuration.WithLabelValues(norm(provider)).Observe(d.Seconds())
}
