package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheLookupsTotal) }

// Redis-backed caches. Any other name is reported as "other".
const (
	CacheDiscount     = "discount"
	CacheIdempotency  = "idempotency"
	CacheWebhookClaim = "webhook_claim"
)

type CacheOutcome string

const (
	CacheHit         CacheOutcome = "hit"
	CacheMiss        CacheOutcome = "miss"
	CacheInFlight    CacheOutcome = "in_flight" // idempotency key still reserved
	CacheUnavailable CacheOutcome = "unavailable"
)

var cacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_cache_lookups_total",
		Help: "Redis lookups by cache and outcome. A webhook_claim hit is a duplicate delivery.",
	},
	[]string{"cache", "outcome"},
)

func cacheLabel(name string) string {
	switch n := norm(name); n {
	case CacheDiscount, CacheIdempotency, CacheWebhookClaim:
		return n
	}
	return "other"
}

func ObserveCache(cache string, o CacheOutcome) {
	cacheLookupsTotal.WithLabelValues(cacheLabel(cache), string(o)).Inc()
}
