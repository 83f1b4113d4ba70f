package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the event pipeline.
type Metrics struct {
	EventsRecorded  prometheus.Counter
	EventsDelivered prometheus.Counter
	EventsDropped   prometheus.Counter
	FlushFailures   prometheus.Counter
	ArchiveFailures prometheus.Counter
	Buffered        prometheus.Gauge
	FlushDuration   prometheus.Histogram
}

// New registers pipeline metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_telemetry_events_recorded_total",
			Help: "Total number of events recorded into the buffer",
		}),
		EventsDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_telemetry_events_delivered_total",
			Help: "Total number of events acknowledged by the collector",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_telemetry_events_dropped_total",
			Help: "Total number of events dropped because the buffer was full",
		}),
		FlushFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_telemetry_flush_failures_total",
			Help: "Total number of failed flushes whose batch was returned to the buffer",
		}),
		ArchiveFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_telemetry_archive_failures_total",
			Help: "Total number of delivered batches that could not be archived",
		}),
		Buffered: f.NewGauge(prometheus.GaugeOpts{
			Name: "blaze_telemetry_buffered_events",
			Help: "Number of events waiting for delivery",
		}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "blaze_telemetry_flush_duration_seconds",
			Help:    "Time spent delivering a batch",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) IncRecorded() {
	m.EventsRecorded.Inc()
}

func (m *Metrics) AddDelivered(n int) {
	m.EventsDelivered.Add(float64(n))
}

func (m *Metrics) AddDropped(n int64) {
	m.EventsDropped.Add(float64(n))
}

func (m *Metrics) IncFlushFailures() {
	m.FlushFailures.Inc()
}

func (m *Metrics) IncArchiveFailures() {
	m.ArchiveFailures.Inc()
}

func (m *Metrics) SetBuffered(n int) {
	m.Buffered.Set(float64(n))
}

func (m *Metrics) ObserveFlushDuration(seconds float64) {
	m.FlushDuration.Observe(seconds)
}
