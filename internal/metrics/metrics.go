package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Drop reasons for envelopes the relay did not forward.
const (
	DropReasonMalformed      = "malformed"
	DropReasonTargetNotFound = "target_not_found"
	DropReasonQueueOverflow  = "queue_overflow"
	DropReasonRateLimited    = "rate_limited"
	DropReasonTooLarge       = "message_too_large"
	DropReasonPeerClosed     = "peer_closed"
)

// Miscellaneous relay events.
const (
	EventIDCollision     = "id_collision"
	EventSlowConsumer    = "slow_consumer"
	EventIdleTimeout     = "idle_timeout"
	EventOriginRejected  = "origin_rejected"
	EventDeliveryAck     = "delivery_ack"
	EventUpgradeRejected = "upgrade_rejected"
)

// Metrics holds the relay's Prometheus collectors on a private registry so
// several relays (tests) can coexist in one process.
type Metrics struct {
	reg *prometheus.Registry

	connectionsActive  prometheus.Gauge
	connectionsTotal   prometheus.Counter
	presenceBroadcasts prometheus.Counter
	routed             *prometheus.CounterVec
	dropped            *prometheus.CounterVec
	events             *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aero_call_relay_connections_active",
			Help: "Signaling connections currently registered.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aero_call_relay_connections_total",
			Help: "Signaling connections registered since start.",
		}),
		presenceBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aero_call_relay_presence_broadcasts_total",
			Help: "Presence fan-outs triggered by register/unregister.",
		}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aero_call_relay_envelopes_routed_total",
			Help: "Envelopes forwarded to a target, by inbound type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aero_call_relay_envelopes_dropped_total",
			Help: "Envelopes not forwarded, by reason.",
		}, []string{"reason"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aero_call_relay_events_total",
			Help: "Internal event counters.",
		}, []string{"event"}),
	}

	m.reg.MustRegister(
		m.connectionsActive,
		m.connectionsTotal,
		m.presenceBroadcasts,
		m.routed,
		m.dropped,
		m.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, e.g. for promhttp or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) PresenceBroadcast() {
	if m == nil {
		return
	}
	m.presenceBroadcasts.Inc()
}

func (m *Metrics) Routed(envelopeType string) {
	if m == nil {
		return
	}
	m.routed.WithLabelValues(envelopeType).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Inc(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}
