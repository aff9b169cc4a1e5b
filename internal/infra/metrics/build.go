package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(buildInfo)
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "billing_build_info",
		Help: "A constant metric with labels for version, commit and billing env.",
	},
	[]string{"version", "commit", "env"},
)

func SetBuildInfo(version, commit, env string) {
	buildInfo.WithLabelValues(version, commit, norm(env)).Set(1)
}
