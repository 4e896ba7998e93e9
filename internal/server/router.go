package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lqhuy/ferry/internal/auth"
	"github.com/lqhuy/ferry/internal/logging"
	"github.com/lqhuy/ferry/internal/metrics"
	"github.com/lqhuy/ferry/internal/protocol"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  WebSocketReadBuffer,
	WriteBufferSize: WebSocketWriteBuffer,
	CheckOrigin: func(r *http.Request) bool {
		// The channel is token-authenticated; origin checks add nothing.
		return true
	},
}

// handleWS upgrades the connection and runs the per-connection router.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newConn(s, ws)
	metrics.ConnectionOpened()
	done := make(chan struct{})
	go c.ping(done)

	defer func() {
		close(done)
		s.pauseOwnedSessions(c)
		_ = ws.Close()
		metrics.ConnectionClosed()
	}()

	ws.SetReadLimit(protocol.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(protocol.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(protocol.PongTimeout))
	})

	s.readLoop(r.Context(), c)
}

// readLoop reads and dispatches frames one at a time. Each handler
// completes before the next frame is read, which pins the per-connection
// ordering contract. Malformed frames are logged and dropped; only auth
// failures terminate the connection.
func (s *Server) readLoop(ctx context.Context, c *conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug("connection closed", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(protocol.PongTimeout))

		msg, err := protocol.ParseClient(data)
		if err != nil {
			reason := "malformed"
			if errors.Is(err, protocol.ErrUnknownAction) {
				reason = "unknown_action"
			}
			metrics.RecordProtocolError(reason)
			logging.Warn("dropping frame", zap.Error(err))
			c.sendError("", "invalid frame")
			continue
		}

		if !s.dispatch(ctx, c, msg) {
			return
		}
	}
}

// dispatch routes one parsed frame. It returns false when the connection
// must be closed (auth failure).
func (s *Server) dispatch(ctx context.Context, c *conn, msg protocol.ClientMessage) bool {
	if f, ok := msg.(*protocol.AuthFrame); ok {
		metrics.RecordFrameIn(string(protocol.ActionAuth))
		return s.handleAuth(ctx, c, f)
	}

	if !c.authenticated {
		metrics.RecordProtocolError("unauthenticated")
		c.sendError("", "authentication required")
		return true
	}

	switch f := msg.(type) {
	case *protocol.StartFrame:
		metrics.RecordFrameIn(string(protocol.ActionStart))
		s.handleStart(ctx, c, f)
	case *protocol.ChunkFrame:
		metrics.RecordFrameIn(string(protocol.ActionChunk))
		s.handleChunk(ctx, c, f)
	case *protocol.PauseFrame:
		metrics.RecordFrameIn(string(protocol.ActionPause))
		s.handlePause(c, f)
	case *protocol.ResumeFrame:
		metrics.RecordFrameIn(string(protocol.ActionResume))
		s.handleResume(c, f)
	case *protocol.StopFrame:
		metrics.RecordFrameIn(string(protocol.ActionStop))
		s.handleStop(ctx, c, f)
	case *protocol.CompleteFrame:
		metrics.RecordFrameIn(string(protocol.ActionComplete))
		s.handleComplete(ctx, c, f)
	case *protocol.DownloadStartFrame:
		metrics.RecordFrameIn(string(protocol.ActionDownloadStart))
		s.handleDownloadStart(c, f)
	case *protocol.DownloadPauseFrame:
		metrics.RecordFrameIn(string(protocol.ActionDownloadPause))
		s.handleDownloadPause(c, f)
	case *protocol.DownloadResumeFrame:
		metrics.RecordFrameIn(string(protocol.ActionDownloadResume))
		s.handleDownloadResume(c, f)
	case *protocol.DownloadStopFrame:
		metrics.RecordFrameIn(string(protocol.ActionDownloadStop))
		s.handleDownloadStop(c, f)
	default:
		// ParseClient rejects unknown variants; reaching here means the
		// sum type grew without a dispatch arm.
		metrics.RecordProtocolError("unknown_action")
		logging.Error("unhandled frame type")
	}
	return true
}

// handleAuth verifies the bearer token and binds the user to the
// connection. Failure is the only fatal error: the socket is closed with a
// policy reason.
func (s *Server) handleAuth(ctx context.Context, c *conn, f *protocol.AuthFrame) bool {
	if c.authenticated {
		c.sendError("", "already authenticated")
		return true
	}

	user, err := s.verifier.VerifyToken(ctx, f.Token)
	if err != nil {
		metrics.RecordAuth("failed")
		if errors.Is(err, auth.ErrInvalidToken) {
			logging.Warn("auth rejected")
			c.close("invalid token")
		} else {
			logging.Error("auth store failure", zap.Error(err))
			c.close("authentication unavailable")
		}
		return false
	}

	c.authenticated = true
	c.user = user
	c.token = f.Token
	metrics.RecordAuth("ok")
	logging.Info("client authenticated", zap.String("user", user.Username))
	return true
}
