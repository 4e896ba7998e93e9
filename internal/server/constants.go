package server

import "time"

// WebSocket configuration
const (
	WebSocketReadBuffer  = 4096
	WebSocketWriteBuffer = 4096
)

// Download engine
const (
	// DownloadReadSize is the buffer used when draining a download body.
	// Pause and stop are observed at these boundaries.
	DownloadReadSize = 64 * 1024

	// DownloadRequestTimeout caps the header round trip, not the body.
	DownloadRequestTimeout = 30 * time.Second
)

// Timeouts
const (
	ShutdownTimeout = 30 * time.Second
)
