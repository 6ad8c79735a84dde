// Package telemetry exposes Prometheus metrics for a gossip node.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gossipnode"

// Metrics owns a private registry so several nodes can share a process.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	GossipTicks      prometheus.Counter
	GossipSent       prometheus.Counter
	ValuesKnown      prometheus.Gauge
	ValuesLearned    *prometheus.CounterVec
}

// New creates and registers the node's collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Messages decoded from the input stream, by body type.",
			},
			[]string{"type"},
		),

		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Messages written to the output stream, by body type.",
			},
			[]string{"type"},
		),

		GossipTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_ticks_total",
			Help:      "Anti-entropy rounds performed.",
		}),

		GossipSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_messages_sent_total",
			Help:      "Full-state gossip messages sent to neighbours.",
		}),

		ValuesKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "values_known",
			Help:      "Size of the replicated value set.",
		}),

		ValuesLearned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "values_learned_total",
				Help:      "Values newly added to the set, by how they arrived.",
			},
			[]string{"via"},
		),
	}

	m.Registry.MustRegister(
		m.MessagesReceived, m.MessagesSent,
		m.GossipTicks, m.GossipSent,
		m.ValuesKnown, m.ValuesLearned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Received counts one decoded inbound message of msgType.
func (m *Metrics) Received(msgType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(msgType).Inc()
}

// Sent counts one message of msgType written to the output stream.
func (m *Metrics) Sent(msgType string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(msgType).Inc()
}

// Tick records one anti-entropy round that sent fanout messages.
func (m *Metrics) Tick(fanout int) {
	if m == nil {
		return
	}
	m.GossipTicks.Inc()
	m.GossipSent.Add(float64(fanout))
}

// Learned records n new values arriving via "broadcast" or "gossip" and the
// resulting set size.
func (m *Metrics) Learned(via string, n, known int) {
	if m == nil {
		return
	}
	if n > 0 {
		m.ValuesLearned.WithLabelValues(via).Add(float64(n))
	}
	m.ValuesKnown.Set(float64(known))
}
