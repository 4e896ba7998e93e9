// Package client implements the ferry side of the relay protocol: a single
// websocket connection multiplexing any number of upload and download
// sessions. One goroutine owns all reads and routes server frames to the
// session that asked for them; writers share the connection behind a mutex.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	ferrors "github.com/lqhuy/ferry/internal/errors"
	"github.com/lqhuy/ferry/internal/logging"
	"github.com/lqhuy/ferry/internal/protocol"
)

const (
	handshakeTimeout = 10 * time.Second

	// eventBuffer bounds each session's inbound event queue. Progress
	// frames beyond it are dropped; acks always fit because every driver
	// drains its queue between sends.
	eventBuffer = 32
)

// Client is one authenticated relay connection.
type Client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	uploads   map[string]chan protocol.ServerMessage
	downloads map[string]chan protocol.ServerMessage
	dlWaiters []chan *protocol.DownloadStartAck

	done    chan struct{}
	readErr error
}

// Dial connects to the relay, sends the auth frame and starts the read
// loop. The relay closes the socket on a bad token; that surfaces as an
// auth error on the first operation rather than here.
func Dial(ctx context.Context, wsURL, token string) (*Client, error) {
	if token == "" {
		return nil, ferrors.ConfigError("No auth token configured", nil)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, ferrors.ConnectionError(wsURL, err)
	}
	ws.SetReadLimit(protocol.MaxFrameSize)

	c := &Client{
		ws:        ws,
		uploads:   make(map[string]chan protocol.ServerMessage),
		downloads: make(map[string]chan protocol.ServerMessage),
		done:      make(chan struct{}),
	}
	if err := c.send(protocol.NewAuthFrame(token)); err != nil {
		ws.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

// Close tears the connection down. In-flight sessions observe Err.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// Done is closed when the connection dies. Err reports why.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the terminal connection error, nil before Done closes.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

func (c *Client) send(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(protocol.WriteTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readLoop owns ws reads for the connection's lifetime.
func (c *Client) readLoop() {
	defer c.finish()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				c.readErr = ferrors.AuthError(err)
			} else if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.readErr = ferrors.ConnectionError("relay", err)
			}
			c.mu.Unlock()
			return
		}

		msg, err := protocol.ParseServer(data)
		if err != nil {
			logging.Warn("dropping unparseable server frame", zap.Error(err))
			continue
		}
		c.route(msg)
	}
}

func (c *Client) route(msg protocol.ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case *protocol.DownloadStartAck:
		if len(c.dlWaiters) == 0 {
			logging.Warn("download-start-ack with no waiter", zap.String("session", m.SessionID))
			return
		}
		w := c.dlWaiters[0]
		c.dlWaiters = c.dlWaiters[1:]
		c.downloads[m.SessionID] = make(chan protocol.ServerMessage, eventBuffer)
		w <- m

	case *protocol.DownloadInfo:
		c.deliver(c.downloads, m.SessionID, msg)
	case *protocol.DownloadProgress:
		c.deliver(c.downloads, m.SessionID, msg)
	case *protocol.DownloadComplete:
		c.deliver(c.downloads, m.SessionID, msg)
	case *protocol.DownloadError:
		c.deliver(c.downloads, m.SessionID, msg)

	case *protocol.StartAck:
		c.deliver(c.uploads, m.FileID, msg)
	case *protocol.Progress:
		c.deliver(c.uploads, m.FileID, msg)
	case *protocol.PauseAck:
		c.deliver(c.uploads, m.FileID, msg)
	case *protocol.ResumeAck:
		c.deliver(c.uploads, m.FileID, msg)
	case *protocol.StopAck:
		c.deliver(c.uploads, m.FileID, msg)
	case *protocol.OffsetMismatch:
		c.deliver(c.uploads, m.FileID, msg)
	case *protocol.CompleteAck:
		c.deliver(c.uploads, m.FileID, msg)

	case *protocol.ErrorEvent:
		if m.FileID == "" {
			logging.Warn("relay error", zap.String("error", m.Error))
			return
		}
		c.deliver(c.uploads, m.FileID, msg)
	}
}

// deliver is called with c.mu held.
func (c *Client) deliver(sessions map[string]chan protocol.ServerMessage, id string, msg protocol.ServerMessage) {
	ch, ok := sessions[id]
	if !ok {
		logging.Debug("frame for unknown session", zap.String("id", id))
		return
	}
	select {
	case ch <- msg:
	default:
		logging.Warn("session event queue full, dropping frame", zap.String("id", id))
	}
}

func (c *Client) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.done)
}

func (c *Client) registerUpload(fileID string) chan protocol.ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan protocol.ServerMessage, eventBuffer)
	c.uploads[fileID] = ch
	return ch
}

func (c *Client) unregisterUpload(fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.uploads, fileID)
}

func (c *Client) registerDownloadWaiter() chan *protocol.DownloadStartAck {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := make(chan *protocol.DownloadStartAck, 1)
	c.dlWaiters = append(c.dlWaiters, w)
	return w
}

func (c *Client) downloadEvents(sessionID string) chan protocol.ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloads[sessionID]
}

func (c *Client) unregisterDownload(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.downloads, sessionID)
}
