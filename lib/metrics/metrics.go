package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Event outcomes used as the "result" label of trunk_events_total
const (
	ResultAccepted  = "accepted"
	ResultDuplicate = "duplicate"
	ResultInvalid   = "invalid"
	ResultInternal  = "internal"
)

// Metrics holds the relay collectors. Every method is safe on a nil receiver
// so components can be built without instrumentation in tests.
type Metrics struct {
	Registry *prometheus.Registry

	connections      prometheus.Gauge
	subscriptions    prometheus.Gauge
	events           *prometheus.CounterVec
	stored           *prometheus.CounterVec
	fanoutDeliveries prometheus.Counter
	fanoutDropped    prometheus.Counter
}

// New creates the collectors on a fresh registry together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trunk_connections",
			Help: "Number of connected clients.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trunk_subscriptions",
			Help: "Number of live subscriptions across all clients.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trunk_events_total",
			Help: "Inbound events by ingest result.",
		}, []string{"result"}),
		stored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trunk_events_stored_total",
			Help: "Accepted events by persistence class.",
		}, []string{"class"}),
		fanoutDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trunk_fanout_deliveries_total",
			Help: "EVENT frames queued to live subscribers.",
		}),
		fanoutDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trunk_fanout_dropped_total",
			Help: "Clients dropped because their outbound queue was full.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.subscriptions,
		m.events,
		m.stored,
		m.fanoutDeliveries,
		m.fanoutDropped,
	)

	return m
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.connections.Dec()
	}
}

// SubscriptionsChanged adds delta to the live subscription gauge
func (m *Metrics) SubscriptionsChanged(delta int) {
	if m != nil && delta != 0 {
		m.subscriptions.Add(float64(delta))
	}
}

func (m *Metrics) EventResult(result string) {
	if m != nil {
		m.events.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) EventStored(class string) {
	if m != nil {
		m.stored.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) Delivered() {
	if m != nil {
		m.fanoutDeliveries.Inc()
	}
}

func (m *Metrics) Dropped() {
	if m != nil {
		m.fanoutDropped.Inc()
	}
}
