// Package metrics exposes relay counters and gauges to Prometheus.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	connections     prometheus.Gauge
	rooms           prometheus.Gauge
	received        *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	deliverySkipped *prometheus.CounterVec
	ratings         prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Open WebSocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_rooms",
			Help: "Rooms with at least one member.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_received_total",
			Help: "Inbound messages by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_dropped_total",
			Help: "Inbound messages that changed nothing, by reason.",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Outbound frames queued to a member, by kind.",
		}, []string{"kind"}),
		deliverySkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_delivery_skipped_total",
			Help: "Outbound frames skipped because the member was not writable, by kind.",
		}, []string{"kind"}),
		ratings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_ratings_total",
			Help: "Emoji ratings applied.",
		}),
	}
	reg.MustRegister(
		m.connections,
		m.rooms,
		m.received,
		m.dropped,
		m.deliveries,
		m.deliverySkipped,
		m.ratings,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

func (m *Metrics) Received(kind string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(kind).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Delivered(kind string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind).Inc()
}

func (m *Metrics) Skipped(kind string) {
	if m == nil {
		return
	}
	m.deliverySkipped.WithLabelValues(kind).Inc()
}

func (m *Metrics) Rated() {
	if m == nil {
		return
	}
	m.ratings.Inc()
}
