// Package metrics holds the Prometheus collectors exported by a bot process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botkit_gateway_frames_received_total",
		Help: "Gateway frames received, by opcode name",
	}, []string{"op"})

	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botkit_gateway_frames_sent_total",
		Help: "Gateway frames sent, by opcode name",
	}, []string{"op"})

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botkit_gateway_decode_failures_total",
		Help: "Inbound frames that could not be decoded",
	})

	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botkit_gateway_reconnects_total",
		Help: "Gateway reconnects, by handshake kind (resume or identify)",
	}, []string{"kind"})

	HeartbeatLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "botkit_gateway_heartbeat_latency_seconds",
		Help:    "Time between sending a heartbeat and receiving its acknowledgement",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	SideEffectsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botkit_side_effects_pending",
		Help: "Side effects queued behind the gateway loop",
	})

	Issues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botkit_issues_total",
		Help: "Issues reported, by severity",
	}, []string{"severity"})
)

// IncReceived records an inbound frame for the given opcode name.
func IncReceived(op string) {
	FramesReceived.WithLabelValues(op).Inc()
}

// IncSent records an outbound frame for the given opcode name.
func IncSent(op string) {
	FramesSent.WithLabelValues(op).Inc()
}

// IncReconnect records a reconnect attempt.
func IncReconnect(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	Reconnects.WithLabelValues(kind).Inc()
}

// IncIssue records a reported issue.
func IncIssue(severity string) {
	Issues.WithLabelValues(severity).Inc()
}
