// Package metrics provides Prometheus metrics for monitoring the ferry relay.
//
// The metrics package is organized into logical modules:
//
//   - connection.go: WebSocket connection, frame and auth metrics
//   - upload.go: Upload session lifecycle and chunk append metrics
//   - forward.go: Downstream forwarding metrics
//   - download.go: URL download engine metrics
//
// Usage Examples:
//
// Recording a chunk append:
//
//	metrics.RecordChunk("appended")
//	metrics.RecordUploadBytes(n)
//
// Recording a forward:
//
//	start := time.Now()
//	// ... stream staging file downstream ...
//	metrics.RecordForward("http", "success", time.Since(start).Seconds(), size)
//
// All metrics are automatically registered with Prometheus and exposed
// via the /metrics endpoint when the relay starts.
package metrics
