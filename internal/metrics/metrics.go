// Package metrics exposes the process's Prometheus instrumentation. One
// Metrics value per process, registered on its own registry so tests can
// construct as many as they like without collisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	ConnState        *prometheus.GaugeVec
	InboundMessages  *prometheus.CounterVec
	OutboundMessages *prometheus.CounterVec
	PolicyDenials    *prometheus.CounterVec
	PairingIssued    prometheus.Counter
	SessionRefreshes *prometheus.CounterVec
	SendFailures     prometheus.Counter
	Reconnects       prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		ConnState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "talkwire_connection_state",
			Help: "Connection lifecycle state, 1 for the current state.",
		}, []string{"state"}),

		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkwire_inbound_messages_total",
			Help: "Inbound text messages decoded from the stream.",
		}, []string{"kind"}),

		OutboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkwire_outbound_messages_total",
			Help: "Messages sent to the platform.",
		}, []string{"kind"}),

		PolicyDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkwire_policy_denials_total",
			Help: "Inbound messages rejected by the policy gate.",
		}, []string{"reason"}),

		PairingIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talkwire_pairing_codes_issued_total",
			Help: "Pairing codes issued to unknown senders.",
		}),

		SessionRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkwire_session_refreshes_total",
			Help: "Session refresh attempts by outcome.",
		}, []string{"outcome"}),

		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talkwire_send_failures_total",
			Help: "Outbound sends that returned an error.",
		}),

		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talkwire_reconnects_total",
			Help: "Reconnect attempts after transport loss.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ConnState,
		m.InboundMessages,
		m.OutboundMessages,
		m.PolicyDenials,
		m.PairingIssued,
		m.SessionRefreshes,
		m.SendFailures,
		m.Reconnects,
	)
	return m
}

// SetConnState flips the state gauge so exactly one state reads 1.
func (m *Metrics) SetConnState(state string) {
	for _, s := range []string{"idle", "connecting", "online", "offline", "disconnected"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.ConnState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
