package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	ferrors "github.com/lqhuy/ferry/internal/errors"
	"github.com/lqhuy/ferry/internal/protocol"
)

// Download tracks one relay-side URL fetch. The relay does the actual
// transfer; this driver just watches events and relays control actions.
type Download struct {
	c *Client

	SessionID string
	URL       string
	Filename  string

	events chan protocol.ServerMessage
}

// StartDownload asks the relay to fetch a URL into the operator's
// downloads area and returns once the relay acknowledges the session.
func (c *Client) StartDownload(ctx context.Context, rawURL, filename string) (*Download, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, ferrors.InvalidURLError(rawURL, err)
	}

	waiter := c.registerDownloadWaiter()
	if err := c.send(protocol.NewDownloadStartFrame(rawURL, filename)); err != nil {
		return nil, err
	}

	select {
	case ack := <-waiter:
		return &Download{
			c:         c,
			SessionID: ack.SessionID,
			URL:       ack.URL,
			Filename:  ack.Filename,
			events:    c.downloadEvents(ack.SessionID),
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		if err := c.Err(); err != nil {
			return nil, err
		}
		return nil, ferrors.ConnectionError("relay", errors.New("connection closed"))
	}
}

// DownloadProgressFunc receives relay-side download advancement.
type DownloadProgressFunc func(downloaded, total uint64)

// Wait blocks until the relay reports a terminal state and returns the
// saved path. A stop issued concurrently surfaces as ErrStopped.
func (d *Download) Wait(ctx context.Context, onProgress DownloadProgressFunc) (string, error) {
	defer d.c.unregisterDownload(d.SessionID)

	for {
		select {
		case msg, ok := <-d.events:
			if !ok {
				return "", d.connErr()
			}
			switch m := msg.(type) {
			case *protocol.DownloadProgress:
				if onProgress != nil {
					onProgress(m.DownloadedBytes, m.TotalSize)
				}
			case *protocol.DownloadInfo:
				if onProgress != nil {
					onProgress(m.DownloadedBytes, m.TotalSize)
				}
				if m.Status == "stopped" {
					return "", ErrStopped
				}
			case *protocol.DownloadComplete:
				return m.FilePath, nil
			case *protocol.DownloadError:
				return "", fmt.Errorf("relay download failed: %s", m.Error)
			}
		case <-ctx.Done():
			return "", ctx.Err()
		case <-d.c.done:
			return "", d.connErr()
		}
	}
}

func (d *Download) connErr() error {
	if err := d.c.Err(); err != nil {
		return err
	}
	return ferrors.ConnectionError("relay", errors.New("connection closed"))
}

// Pause suspends the relay-side transfer at the next chunk boundary.
func (d *Download) Pause() error { return d.c.send(protocol.NewDownloadPauseFrame(d.SessionID)) }

// Resume restarts a paused transfer from the bytes already fetched.
func (d *Download) Resume() error { return d.c.send(protocol.NewDownloadResumeFrame(d.SessionID)) }

// Stop aborts the transfer; the relay deletes the partial file.
func (d *Download) Stop() error { return d.c.send(protocol.NewDownloadStopFrame(d.SessionID)) }
