// Package metrics holds the Prometheus collectors exported by the chat hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "strangerchat"

// Drop reasons for DroppedEvents.
const (
	DropStaleTarget  = "stale_target"
	DropSlowConsumer = "slow_consumer"
	DropMalformed    = "malformed"
)

// Metrics groups the hub collectors. Create it once per registry.
type Metrics struct {
	Connections    prometheus.Gauge
	QueueDepth     *prometheus.GaugeVec
	Matches        *prometheus.CounterVec
	SessionsEnded  *prometheus.CounterVec
	RelayedEvents  *prometheus.CounterVec
	DroppedEvents  *prometheus.CounterVec
	SearchRejected prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live connections known to the hub.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Records waiting in each waiting-room queue.",
		}, []string{"queue"}),
		Matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Sessions formed, by mode.",
		}, []string{"mode"}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Sessions dissolved, by mode and reason.",
		}, []string{"mode", "reason"}),
		RelayedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_events_total",
			Help:      "Events delivered by the relay, by kind.",
		}, []string{"kind"}),
		DroppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Events that were not delivered, by reason.",
		}, []string{"reason"}),
		SearchRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_rejected_total",
			Help:      "Search requests refused before queueing.",
		}),
	}

	reg.MustRegister(
		m.Connections,
		m.QueueDepth,
		m.Matches,
		m.SessionsEnded,
		m.RelayedEvents,
		m.DroppedEvents,
		m.SearchRejected,
	)
	return m
}
