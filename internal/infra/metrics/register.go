package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register is called from init() in each collector file.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// Register adds every billing collector to reg. Collectors already present
// are skipped, so the CLI and the server can share one registry.
func Register(reg prometheus.Registerer) error {
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MustRegister registers the collectors with the default registry once.
func MustRegister() {
	once.Do(func() {
		if err := Register(prometheus.DefaultRegisterer); err != nil {
			panic(err)
		}
	})
}
