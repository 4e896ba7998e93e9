package protocol

import "time"

// Chunk sizing
const (
	// DefaultChunkSize is the chunk size clients use unless configured otherwise
	DefaultChunkSize = 64 * 1024 // 64KB

	// MinChunkSize is the smallest accepted chunk size configuration
	MinChunkSize = 1024 // 1KB

	// MaxChunkSize is the largest chunk payload accepted in a single frame
	MaxChunkSize = 1024 * 1024 // 1MB
)

// Frame and identifier limits
const (
	// MaxFrameSize caps a single websocket text frame (base64 overhead included)
	MaxFrameSize = 8 * 1024 * 1024 // 8MB

	// MaxFileIDLen caps client-chosen file identifiers
	MaxFileIDLen = 64

	// MaxFileNameLen caps declared file names
	MaxFileNameLen = 255
)

// Timing
const (
	// ProgressInterval is the minimum spacing between progress events per session
	ProgressInterval = 250 * time.Millisecond

	// WriteTimeout is the maximum time to write one frame to the socket
	WriteTimeout = 10 * time.Second

	// PingInterval is how often the relay pings an idle connection
	PingInterval = 30 * time.Second

	// PongTimeout is how long the relay waits for any inbound traffic
	// before considering the connection dead
	PongTimeout = 75 * time.Second
)
