package delivery

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/notify"
)

type metrics struct {
	outcomes *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatwatch",
			Subsystem: "delivery",
			Name:      "jobs_total",
			Help:      "Queued deliveries settled by channel and outcome.",
		}, []string{"channel", "outcome"}),
	}
	if reg != nil {
		if err := reg.Register(m.outcomes); err != nil {
			// A second worker on the same registry shares the counters.
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
			m.outcomes = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return m
}

func (m *metrics) observe(kind notify.ChannelKind, outcome string) {
	if m != nil {
		m.outcomes.WithLabelValues(string(kind), outcome).Inc()
	}
}
