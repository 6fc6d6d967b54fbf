// Package metrics holds the Prometheus collectors shared by the collector
// endpoint and the event dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	EventsIngested   *prometheus.CounterVec
	DispatchFailures prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "washday",
			Name:      "events_ingested_total",
			Help:      "Analytics events accepted by the collector, by event type.",
		}, []string{"event_type"}),
		DispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "washday",
			Name:      "dispatch_failures_total",
			Help:      "Analytics events the dispatcher failed to deliver and dropped.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.EventsIngested, m.DispatchFailures)
	}
	return m
}
