package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	metrics := []prometheus.Collector{
		ActiveConnections,
		FramesTotal,
		ProtocolErrorsTotal,
		AuthTotal,
		ActiveUploadSessions,
		ChunksTotal,
		UploadBytesTotal,
		SessionsAdoptedTotal,
		UploadSessionDuration,
		ForwardsTotal,
		ForwardDuration,
		ForwardBytesTotal,
		ActiveDownloadSessions,
		DownloadsTotal,
		DownloadBytesTotal,
		DownloadResumesTotal,
	}

	for _, metric := range metrics {
		if metric == nil {
			t.Error("Found nil metric")
		}
	}
}

func TestUploadMetrics(t *testing.T) {
	before := testutil.ToFloat64(ChunksTotal.WithLabelValues("appended"))
	RecordChunk("appended")
	RecordUploadBytes(65536)
	RecordAdoption()
	RecordUploadSessionDuration(1.5)

	after := testutil.ToFloat64(ChunksTotal.WithLabelValues("appended"))
	if after != before+1 {
		t.Errorf("Expected ChunksTotal to grow by 1, got %f -> %f", before, after)
	}
}

func TestConnectionGauge(t *testing.T) {
	before := testutil.ToFloat64(ActiveConnections)
	ConnectionOpened()
	if v := testutil.ToFloat64(ActiveConnections); v != before+1 {
		t.Errorf("Expected gauge %f, got %f", before+1, v)
	}
	ConnectionClosed()
	if v := testutil.ToFloat64(ActiveConnections); v != before {
		t.Errorf("Expected gauge %f, got %f", before, v)
	}
}

func TestForwardMetrics(t *testing.T) {
	okBefore := testutil.ToFloat64(ForwardsTotal.WithLabelValues("http", "success"))
	bytesBefore := testutil.ToFloat64(ForwardBytesTotal.WithLabelValues("http"))

	RecordForward("http", "success", 0.25, 200000)
	RecordForward("http", "failure", 0.25, 200000)

	if v := testutil.ToFloat64(ForwardsTotal.WithLabelValues("http", "success")); v != okBefore+1 {
		t.Errorf("Expected success counter %f, got %f", okBefore+1, v)
	}
	// Failed forwards must not count bytes
	if v := testutil.ToFloat64(ForwardBytesTotal.WithLabelValues("http")); v != bytesBefore+200000 {
		t.Errorf("Expected byte counter %f, got %f", bytesBefore+200000, v)
	}
}

func TestDownloadMetrics(t *testing.T) {
	before := testutil.ToFloat64(DownloadsTotal.WithLabelValues("completed"))
	DownloadSessionOpened()
	RecordDownloadBytes(65536)
	RecordDownloadResume()
	RecordDownloadResult("completed")
	DownloadSessionClosed()

	if v := testutil.ToFloat64(DownloadsTotal.WithLabelValues("completed")); v != before+1 {
		t.Errorf("Expected DownloadsTotal %f, got %f", before+1, v)
	}
}
