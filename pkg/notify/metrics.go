package notify

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts dispatcher outcomes.
type Metrics struct {
	deliveries *prometheus.CounterVec
	events     prometheus.Counter
	duration   prometheus.Histogram
}

// NewMetrics creates dispatcher metrics and registers them with reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatwatch",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seatwatch",
			Subsystem: "notify",
			Name:      "events_total",
			Help:      "Events handed to the dispatcher.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seatwatch",
			Subsystem: "notify",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of one dispatch run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.deliveries, m.events, m.duration)
	}
	return m
}

func (m *Metrics) delivered(kind ChannelKind) {
	if m != nil {
		m.deliveries.WithLabelValues(string(kind), "delivered").Inc()
	}
}

func (m *Metrics) failed(kind ChannelKind) {
	if m != nil {
		m.deliveries.WithLabelValues(string(kind), "failed").Inc()
	}
}

func (m *Metrics) observe(events int, seconds float64) {
	if m != nil {
		m.events.Add(float64(events))
		m.duration.Observe(seconds)
	}
}
