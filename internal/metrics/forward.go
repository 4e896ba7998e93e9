package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Forward Metrics
//
// These metrics track the one-shot push of completed staging files to the
// downstream destination. Failures leave the staging file in place, so a
// failure here is always followed by either a client retry or a janitor
// sweep.

var (
	// ForwardsTotal counts forward attempts.
	// Labels: backend (http, s3), result (success, failure)
	ForwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_forwards_total",
			Help: "Total forward attempts by backend and result",
		},
		[]string{"backend", "result"},
	)

	// ForwardDuration tracks the time to stream one staging file downstream.
	// Labels: backend (http, s3)
	ForwardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ferry_forward_duration_seconds",
			Help:    "Time to stream one staging file downstream",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4 min
		},
		[]string{"backend"},
	)

	// ForwardBytesTotal counts bytes streamed downstream.
	// Labels: backend (http, s3)
	ForwardBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_forward_bytes_total",
			Help: "Total bytes streamed downstream",
		},
		[]string{"backend"},
	)
)

// RecordForward records one forward attempt with its duration and size.
func RecordForward(backend, result string, seconds float64, bytes uint64) {
	ForwardsTotal.WithLabelValues(backend, result).Inc()
	ForwardDuration.WithLabelValues(backend).Observe(seconds)
	if result == "success" {
		ForwardBytesTotal.WithLabelValues(backend).Add(float64(bytes))
	}
}
