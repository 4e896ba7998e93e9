package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload Metrics
//
// These metrics track upload session lifecycle and chunk appends. A session
// survives disconnects, so the active gauge counts staged uploads in any
// non-terminal state, not connected uploaders.

var (
	// ActiveUploadSessions tracks upload sessions currently in the registry.
	ActiveUploadSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ferry_upload_sessions_active",
			Help: "Number of upload sessions in the registry",
		},
	)

	// ChunksTotal counts chunk frames by outcome.
	// Labels: result (appended, offset_mismatch, rejected, storage_error)
	// Use this to watch the reconciliation rate; a high offset_mismatch
	// share means clients are racing far ahead of the relay.
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_upload_chunks_total",
			Help: "Total chunk frames by outcome",
		},
		[]string{"result"},
	)

	// UploadBytesTotal counts bytes appended to staging files.
	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ferry_upload_bytes_received_total",
			Help: "Total bytes appended to staging files",
		},
	)

	// SessionsAdoptedTotal counts sessions seeded from an existing staging
	// file on reconnect.
	SessionsAdoptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ferry_upload_sessions_adopted_total",
			Help: "Total upload sessions adopted from existing staging files",
		},
	)

	// UploadSessionDuration tracks time from session creation to completion.
	UploadSessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ferry_upload_session_duration_seconds",
			Help:    "Upload session duration from start to successful forward",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
	)
)

// Helper functions for upload metrics

// UploadSessionOpened increments the session gauge.
func UploadSessionOpened() {
	ActiveUploadSessions.Inc()
}

// UploadSessionClosed decrements the session gauge.
func UploadSessionClosed() {
	ActiveUploadSessions.Dec()
}

// RecordChunk records a chunk frame outcome.
func RecordChunk(result string) {
	ChunksTotal.WithLabelValues(result).Inc()
}

// RecordUploadBytes records bytes appended to a staging file.
func RecordUploadBytes(n int) {
	UploadBytesTotal.Add(float64(n))
}

// RecordAdoption records a session seeded from a pre-existing staging file.
func RecordAdoption() {
	SessionsAdoptedTotal.Inc()
}

// RecordUploadSessionDuration records a completed session's lifetime.
func RecordUploadSessionDuration(seconds float64) {
	UploadSessionDuration.Observe(seconds)
}
