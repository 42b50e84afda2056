package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - prometheus collectors of chat server.
// All methods are safe to call on nil receiver.
type Metrics struct {
	activeSessions   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	rejectedTotal    *prometheus.CounterVec
	messagesTotal    prometheus.Counter
	disconnectsTotal *prometheus.CounterVec
	keepaliveLatency prometheus.Histogram
	droppedTotal     prometheus.Counter
}

// NewMetrics - registers chat collectors with reg, nil reg means prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	const namespace = "chatrelay"
	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions in active state.",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions which reached active state.",
		}),
		rejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "Total number of connections refused before active state.",
		}, []string{"reason"}),
		messagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of relayed chat messages.",
		}),
		disconnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Total number of finished sessions by reason.",
		}, []string{"reason"}),
		keepaliveLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "keepalive_latency_seconds",
			Help:      "Time between keepalive probe and its acknowledgement.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		droppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_clients_dropped_total",
			Help:      "Total number of clients evicted because their outbox was full.",
		}),
	}
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) sessionFinished(reason string) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.disconnectsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) rejected(reason string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) message() {
	if m == nil {
		return
	}
	m.messagesTotal.Inc()
}

func (m *Metrics) latency(d time.Duration) {
	if m == nil {
		return
	}
	m.keepaliveLatency.Observe(d.Seconds())
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.droppedTotal.Inc()
}
