package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	activeSessions prometheus.Gauge
	logins         *prometheus.CounterVec
	changes        *prometheus.CounterVec
	broadcastDrops prometheus.Counter
	connections    prometheus.Counter
	terminations   *prometheus.CounterVec
}

// NewMetrics registers the server collectors with reg under the "place" namespace.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "place",
			Name:      "active_sessions",
			Help:      "Number of logged-in sessions",
		}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "place",
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		changes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "place",
			Name:      "changes_total",
			Help:      "CHANGE_TILE requests by result",
		}, []string{"result"}),
		broadcastDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "place",
			Name:      "broadcast_drops_total",
			Help:      "Sessions dropped because their outbound queue was full",
		}),
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "place",
			Name:      "connections_total",
			Help:      "Accepted connections across all transports",
		}),
		terminations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "place",
			Name:      "session_terminations_total",
			Help:      "Session terminations by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) loginAccepted() {
	if m == nil {
		return
	}
	m.logins.WithLabelValues("accepted").Inc()
}

func (m *Metrics) loginRejected() {
	if m == nil {
		return
	}
	m.logins.WithLabelValues("rejected").Inc()
}

func (m *Metrics) changeAccepted() {
	if m == nil {
		return
	}
	m.changes.WithLabelValues("accepted").Inc()
}

func (m *Metrics) changeRejected() {
	if m == nil {
		return
	}
	m.changes.WithLabelValues("rejected").Inc()
}

func (m *Metrics) broadcastDropped() {
	if m == nil {
		return
	}
	m.broadcastDrops.Inc()
}

func (m *Metrics) connectionAccepted() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) terminated(reason string) {
	if m == nil {
		return
	}
	m.terminations.WithLabelValues(reason).Inc()
}
