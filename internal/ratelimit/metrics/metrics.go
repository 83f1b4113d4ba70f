package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions   *prometheus.CounterVec
	CheckErrors prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blaze_ratelimit_decisions_total",
			Help: "Rate limit decisions by outcome",
		}, []string{"outcome"}),
		CheckErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_ratelimit_check_errors_total",
			Help: "Rate limit checks that failed and were let through",
		}),
	}
}

func (m *Metrics) IncAllowed() {
	m.Decisions.WithLabelValues("allowed").Inc()
}

func (m *Metrics) IncDenied() {
	m.Decisions.WithLabelValues("denied").Inc()
}

func (m *Metrics) IncCheckErrors() {
	m.CheckErrors.Inc()
}
