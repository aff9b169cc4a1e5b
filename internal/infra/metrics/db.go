package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns, dbPoolSaturation, dbPoolEmptyAcquires) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_db_pool_connections",
			Help: "Connections in the pgx pool by state.",
		},
		[]string{"state"}, // max, total, idle, in_use
	)
	dbPoolSaturation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billing_db_pool_saturation_ratio",
		Help: "In-use connections over the pool maximum. Charges queue on the pool near 1.",
	})
	dbPoolEmptyAcquires = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billing_db_pool_empty_acquires",
		Help: "Cumulative acquires that had to wait for a free connection.",
	})
)

// PoolStats is the part of pgxpool.Stat the billing service exports.
type PoolStats struct {
	Max           int32
	Total         int32
	Idle          int32
	InUse         int32
	EmptyAcquires int64
}

func SetDBPoolStats(s PoolStats) {
	dbPoolConns.WithLabelValues("max").Set(float64(s.Max))
	dbPoolConns.WithLabelValues("total").Set(float64(s.Total))
	dbPoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbPoolConns.WithLabelValues("in_use").Set(float64(s.InUse))
	dbPoolEmptyAcquires.Set(float64(s.EmptyAcquires))
	if s.Max > 0 {
		dbPoolSaturation.Set(float64(s.InUse) / float64(s.Max))
	}
}
