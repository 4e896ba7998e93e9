package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lqhuy/ferry/internal/auth"
	"github.com/lqhuy/ferry/internal/logging"
	"github.com/lqhuy/ferry/internal/metrics"
	"github.com/lqhuy/ferry/internal/protocol"
)

// conn is the per-connection state: the socket, the identity captured at
// auth time, and the sessions this connection opened. Handlers receive the
// conn explicitly; there is no ambient "current user".
type conn struct {
	srv *Server
	ws  *websocket.Conn

	// writeMu serializes outbound frames. The router is single-threaded
	// but download engines push events from their own goroutines.
	writeMu sync.Mutex

	authenticated bool
	user          auth.User
	token         string

	ownedUploads   map[string]struct{} // fileID set
	ownedDownloads map[string]struct{} // sessionID set
}

func newConn(srv *Server, ws *websocket.Conn) *conn {
	return &conn{
		srv:            srv,
		ws:             ws,
		ownedUploads:   make(map[string]struct{}),
		ownedDownloads: make(map[string]struct{}),
	}
}

// send writes one event frame. Write failures are returned so the router
// can drop the connection, but event producers may also ignore them: a dead
// socket surfaces in the read loop.
func (c *conn) send(event protocol.Event, msg protocol.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(protocol.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	metrics.RecordFrameOut(string(event))
	return nil
}

// sendError emits a non-fatal error event.
func (c *conn) sendError(fileID, message string) {
	if err := c.send(protocol.EventError, protocol.NewErrorEvent(fileID, message)); err != nil {
		logging.Debug("error event not delivered", zap.Error(err))
	}
}

// close closes the socket with a policy message. Used only for auth
// failures, the single fatal error class.
func (c *conn) close(reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(protocol.WriteTimeout))
	_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
	c.writeMu.Unlock()
	_ = c.ws.Close()
}

// ping keeps idle connections alive until ctx is done. Downloads can run
// for minutes without any client frames.
func (c *conn) ping(done <-chan struct{}) {
	ticker := time.NewTicker(protocol.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.ws.SetWriteDeadline(time.Now().Add(protocol.WriteTimeout))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
