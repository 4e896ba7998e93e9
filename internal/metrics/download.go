package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Download Metrics
//
// These metrics track the server-side URL download engine. A resume after
// pause or a transport error re-enters the engine with a Range request, so
// one logical download may span several engine runs.

var (
	// ActiveDownloadSessions tracks download sessions in the registry.
	ActiveDownloadSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ferry_download_sessions_active",
			Help: "Number of download sessions in the registry",
		},
	)

	// DownloadsTotal counts finished downloads by terminal state.
	// Labels: result (completed, stopped, error)
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_downloads_total",
			Help: "Total downloads by terminal state",
		},
		[]string{"result"},
	)

	// DownloadBytesTotal counts bytes written to download temp files.
	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ferry_download_bytes_total",
			Help: "Total bytes fetched by the download engine",
		},
	)

	// DownloadResumesTotal counts engine runs that re-issued a Range request.
	DownloadResumesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ferry_download_resumes_total",
			Help: "Total download engine runs resumed with a Range request",
		},
	)
)

// Helper functions for download metrics

// DownloadSessionOpened increments the download session gauge.
func DownloadSessionOpened() {
	ActiveDownloadSessions.Inc()
}

// DownloadSessionClosed decrements the download session gauge.
func DownloadSessionClosed() {
	ActiveDownloadSessions.Dec()
}

// RecordDownloadResult records a download reaching a terminal state.
func RecordDownloadResult(result string) {
	DownloadsTotal.WithLabelValues(result).Inc()
}

// RecordDownloadBytes records bytes appended to a download temp file.
func RecordDownloadBytes(n int) {
	DownloadBytesTotal.Add(float64(n))
}

// RecordDownloadResume records a Range-resumed engine run.
func RecordDownloadResume() {
	DownloadResumesTotal.Inc()
}
