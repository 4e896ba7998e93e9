package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection Metrics
//
// These metrics track websocket connections and the frames flowing over
// them. Every client, uploader or downloader, holds exactly one connection,
// so the active gauge doubles as a live-client count.

var (
	// ActiveConnections tracks currently connected websocket clients.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ferry_connections_active",
			Help: "Number of active websocket connections",
		},
	)

	// FramesTotal counts frames by direction and discriminator.
	// Labels: direction (in, out), kind (action or event name)
	// Use this to spot chatty clients and event storms.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_frames_total",
			Help: "Total websocket frames by direction and kind",
		},
		[]string{"direction", "kind"},
	)

	// ProtocolErrorsTotal counts dropped inbound frames.
	// Labels: reason (malformed, unknown_action, unauthenticated)
	// These never disconnect the client; a rising rate means a broken peer.
	ProtocolErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_protocol_errors_total",
			Help: "Total inbound frames dropped by reason",
		},
		[]string{"reason"},
	)

	// AuthTotal counts authentication attempts.
	// Labels: result (ok, failed)
	AuthTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_auth_total",
			Help: "Total authentication attempts by result",
		},
		[]string{"result"},
	)
)

// Helper functions for connection metrics

// ConnectionOpened increments the active connection counter.
func ConnectionOpened() {
	ActiveConnections.Inc()
}

// ConnectionClosed decrements the active connection counter.
func ConnectionClosed() {
	ActiveConnections.Dec()
}

// RecordFrameIn records one inbound frame.
func RecordFrameIn(kind string) {
	FramesTotal.WithLabelValues("in", kind).Inc()
}

// RecordFrameOut records one outbound frame.
func RecordFrameOut(kind string) {
	FramesTotal.WithLabelValues("out", kind).Inc()
}

// RecordProtocolError records a dropped inbound frame.
func RecordProtocolError(reason string) {
	ProtocolErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordAuth records an authentication attempt.
func RecordAuth(result string) {
	AuthTotal.WithLabelValues(result).Inc()
}
