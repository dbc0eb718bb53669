// Package metrics keeps relay counters on a private prometheus registry.
// Rooms are never used as labels.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	FrameJoined      = "joined"
	FrameRelayed     = "relayed"
	FrameMalformed   = "malformed"
	FrameUnjoined    = "unjoined"
	FrameInvalidJoin = "invalid_join"

	DeliverySent    = "sent"
	DeliverySkipped = "skipped"

	ConnOpened = "opened"
	ConnClosed = "closed"
)

type Metrics struct {
	reg         *prometheus.Registry
	frames      *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	connections *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_frames_total",
			Help: "Inbound signaling frames by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_deliveries_total",
			Help: "Per-recipient fan-out attempts by outcome.",
		}, []string{"outcome"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_connections_total",
			Help: "Signaling connections opened and closed.",
		}, []string{"event"}),
	}
	m.reg.MustRegister(m.frames, m.deliveries, m.connections)
	return m
}

func (m *Metrics) Frame(outcome string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Deliveries(sent, skipped int) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(DeliverySent).Add(float64(sent))
	m.deliveries.WithLabelValues(DeliverySkipped).Add(float64(skipped))
}

func (m *Metrics) Connection(event string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(event).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
