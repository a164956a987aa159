package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ResolveDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		ResolveDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "atlasid_trust_resolve_duration_seconds",
			Help:    "Duration of trust document resolutions, dominated by the log listening window",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 7.5, 10, 15},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveResolve(start time.Time, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.ResolveDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
