package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts dispatches by intent and outcome.
type Metrics struct {
	dispatches *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewMetrics registers the chat collectors with reg. A nil reg leaves the
// collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wisestar",
			Subsystem: "chat",
			Name:      "dispatches_total",
			Help:      "Dispatched user messages by intent and outcome.",
		}, []string{"intent", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wisestar",
			Subsystem: "chat",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent resolving a user message.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"intent"}),
	}
	if reg != nil {
		reg.MustRegister(m.dispatches, m.latency)
	}
	return m
}

func (m *Metrics) observe(intent, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(intent, status).Inc()
	m.latency.WithLabelValues(intent).Observe(d.Seconds())
}
