package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SessionsCreated prometheus.Counter
	VerifyDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atlasid_sessions_created_total",
			Help: "Verification sessions created by relying parties",
		}),
		VerifyDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "atlasid_session_verify_duration_seconds",
			Help:    "Duration of credential submissions, dominated by log collection",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 7.5, 10, 15},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncSessionCreated() {
	m.SessionsCreated.Inc()
}

// ObserveVerify records a credential submission. Outcome is granted, denied,
// or error (resolution and input failures that finalize nothing).
func (m *Metrics) ObserveVerify(start time.Time, outcome string) {
	m.VerifyDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
