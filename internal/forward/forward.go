// Package forward pushes assembled staging files to the configured
// downstream destination. The push is one-shot: the relay never retries on
// its own, it retains the staging file and lets the client decide.
package forward

import (
	"context"
	"io"
)

// Request describes one completed upload ready to leave the relay. Body
// streams the staging file; implementations must not buffer it whole.
type Request struct {
	FileID    string
	FileName  string // original client-declared name, unsanitized
	FileSize  uint64
	FolderID  string // optional
	Username  string
	UserToken string
	Body      io.Reader
}

// Forwarder streams one assembled file downstream and returns the
// destination-reported final path.
type Forwarder interface {
	// Name identifies the backend in logs and metrics ("http", "s3").
	Name() string

	Forward(ctx context.Context, req Request) (finalPath string, err error)
}
