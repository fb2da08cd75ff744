package chatmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "chatd"
	subsystem = "chat"
)

// Label names for chat metrics.
const (
	labelKind    = "kind"    // message kind: public, direct, room
	labelCommand = "command" // protocol command head, e.g. "/send"
)

// Message kind label values.
const (
	KindPublic = "public"
	KindDirect = "direct"
	KindRoom   = "room"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Chat Metrics
// -------------------------------------------------------------------------

// Collector holds all chatd Prometheus metrics.
//
// Metrics are designed for operating a long-running chat daemon:
//   - Connection and user gauges track the live population.
//   - Message counters track volume per message kind.
//   - Delivery failure counters flag flaky or dead peers.
//   - Rate-limit and unknown-command counters flag abusive clients.
type Collector struct {
	// Connections tracks the number of currently open client connections.
	Connections prometheus.Gauge

	// Users tracks the number of registered users.
	Users prometheus.Gauge

	// Rooms tracks the number of created rooms.
	Rooms prometheus.Gauge

	// Messages counts recorded messages, labeled by kind
	// (public, direct, room).
	Messages *prometheus.CounterVec

	// DeliveryFailures counts writes to a peer that failed and caused the
	// address to be dropped from active connections.
	DeliveryFailures prometheus.Counter

	// RateLimited counts public sends refused by the hourly cap.
	RateLimited prometheus.Counter

	// Commands counts dispatched commands, labeled by command head.
	// Unknown commands are recorded under the "unknown" label value.
	Commands *prometheus.CounterVec
}

// NewCollector creates a Collector with all chat metrics registered against
// the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "chatd_chat_" prefix (namespace_subsystem)
// to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Connections,
		c.Users,
		c.Rooms,
		c.Messages,
		c.DeliveryFailures,
		c.RateLimited,
		c.Commands,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of currently open client connections.",
		}),

		Users: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "users",
			Help:      "Number of registered users.",
		}),

		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rooms",
			Help:      "Number of created rooms.",
		}),

		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_total",
			Help:      "Total messages recorded in history, by kind.",
		}, []string{labelKind}),

		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_failures_total",
			Help:      "Total failed writes to peers that dropped the connection.",
		}),

		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rate_limited_total",
			Help:      "Total public sends refused by the hourly rate cap.",
		}),

		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_total",
			Help:      "Total dispatched commands, by command head.",
		}, []string{labelCommand}),
	}
}

// -------------------------------------------------------------------------
// Connection Lifecycle
// -------------------------------------------------------------------------

// ConnOpened increments the open connections gauge.
// Called when the listener accepts a new socket.
func (c *Collector) ConnOpened() {
	c.Connections.Inc()
}

// ConnClosed decrements the open connections gauge.
// Called when a session ends for any reason.
func (c *Collector) ConnClosed() {
	c.Connections.Dec()
}

// -------------------------------------------------------------------------
// Population
// -------------------------------------------------------------------------

// UserRegistered increments the registered users gauge.
// Users are never destroyed, so there is no matching decrement.
func (c *Collector) UserRegistered() {
	c.Users.Inc()
}

// RoomCreated increments the rooms gauge.
// Rooms are never destroyed, so there is no matching decrement.
func (c *Collector) RoomCreated() {
	c.Rooms.Inc()
}

// -------------------------------------------------------------------------
// Traffic
// -------------------------------------------------------------------------

// MessageRecorded increments the message counter for the given kind
// (KindPublic, KindDirect, KindRoom).
func (c *Collector) MessageRecorded(kind string) {
	c.Messages.WithLabelValues(kind).Inc()
}

// DeliveryFailed increments the delivery failure counter.
// Called when a write to a peer fails and the address is dropped.
func (c *Collector) DeliveryFailed() {
	c.DeliveryFailures.Inc()
}

// SendRateLimited increments the rate-limit refusal counter.
func (c *Collector) SendRateLimited() {
	c.RateLimited.Inc()
}

// CommandDispatched increments the command counter for the given head.
func (c *Collector) CommandDispatched(command string) {
	c.Commands.WithLabelValues(command).Inc()
}
