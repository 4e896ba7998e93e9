package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lqhuy/ferry/internal/auth"
	"github.com/lqhuy/ferry/internal/config"
	"github.com/lqhuy/ferry/internal/forward"
	"github.com/lqhuy/ferry/internal/protocol"
)

const (
	testToken      = "test-token-alice"
	otherUserToken = "test-token-bob"
)

type stubVerifier struct{}

func (stubVerifier) VerifyToken(_ context.Context, token string) (auth.User, error) {
	switch token {
	case testToken:
		return auth.User{ID: 1, Username: "alice"}, nil
	case otherUserToken:
		return auth.User{ID: 2, Username: "bob"}, nil
	}
	return auth.User{}, auth.ErrInvalidToken
}

// memMeta is an in-memory MetadataStore recording status transitions.
type memMeta struct {
	mu     sync.Mutex
	nextID int64
	status map[int64]string
	paths  map[int64]string
	byFile map[string]int64 // wire file id -> latest record id
}

func newMemMeta() *memMeta {
	return &memMeta{
		status: make(map[int64]string),
		paths:  make(map[int64]string),
		byFile: make(map[string]int64),
	}
}

func (m *memMeta) InsertFile(_ context.Context, rec FileMeta) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.status[m.nextID] = rec.Status
	m.byFile[rec.FileID] = m.nextID
	return m.nextID, nil
}

func (m *memMeta) UpdateFileStatus(_ context.Context, id int64, status, finalPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[id] = status
	m.paths[id] = finalPath
	return nil
}

func (m *memMeta) LookupFile(_ context.Context, fileID string) (*FileState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byFile[fileID]
	if !ok {
		return nil, nil
	}
	return &FileState{Status: m.status[id], Path: m.paths[id]}, nil
}

func (m *memMeta) statusOf(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[id]
}

// memForwarder captures forwarded files instead of pushing them anywhere.
type memForwarder struct {
	mu    sync.Mutex
	fail  bool
	files map[string][]byte
}

func newMemForwarder() *memForwarder {
	return &memForwarder{files: make(map[string][]byte)}
}

func (f *memForwarder) Name() string { return "mem" }

func (f *memForwarder) Forward(_ context.Context, req forward.Request) (string, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("downstream unavailable")
	}
	f.files[req.FileID] = body
	return "/files/" + req.FileName, nil
}

func (f *memForwarder) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *memForwarder) file(fileID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[fileID]
}

// newTestRelay builds a relay on temp dirs behind an httptest server and
// returns it with the websocket URL.
func newTestRelay(t *testing.T, fwd forward.Forwarder, meta MetadataStore) (*Server, string) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.StagingDir = t.TempDir()
	cfg.Server.DownloadsDir = t.TempDir()
	cfg.Server.NoMDNS = true
	cfg.Server.NoQR = true
	cfg.Forward.UploadURL = "http://127.0.0.1:1/api/upload"

	srv, err := New(cfg, stubVerifier{}, meta, fwd)
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	t.Cleanup(func() {
		_ = srv.Shutdown()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

// wsClient is a minimal raw-frame test client.
type wsClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func dialRelay(t *testing.T, wsURL, token string) *wsClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	c := &wsClient{t: t, ws: ws}
	if token != "" {
		c.send(protocol.NewAuthFrame(token))
	}
	return c
}

func (c *wsClient) send(msg any) {
	c.t.Helper()
	if err := c.ws.WriteJSON(msg); err != nil {
		c.t.Fatalf("write frame: %v", err)
	}
}

// recv reads the next server frame within a deadline.
func (c *wsClient) recv() protocol.ServerMessage {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	msg, err := protocol.ParseServer(data)
	if err != nil {
		c.t.Fatalf("parse frame %s: %v", data, err)
	}
	return msg
}

// expect reads frames until one matches type T, failing on error events
// unless T is the error type itself.
func expect[T protocol.ServerMessage](c *wsClient) T {
	c.t.Helper()
	for i := 0; i < 32; i++ {
		msg := c.recv()
		if m, ok := msg.(T); ok {
			return m
		}
		if e, ok := msg.(*protocol.ErrorEvent); ok {
			c.t.Fatalf("unexpected error event: %s", e.Error)
		}
	}
	c.t.Fatalf("expected frame never arrived")
	panic("unreachable")
}

func TestAuthInvalidTokenClosesConnection(t *testing.T) {
	_, wsURL := newTestRelay(t, newMemForwarder(), newMemMeta())

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(protocol.NewAuthFrame("no-such-token")); err != nil {
		t.Fatal(err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestUnauthenticatedFramesGetErrorNotDisconnect(t *testing.T) {
	_, wsURL := newTestRelay(t, newMemForwarder(), newMemMeta())
	c := dialRelay(t, wsURL, "")

	c.send(protocol.NewStartFrame("abc", "f.txt", 4, ""))
	e := expectError(c)
	if !strings.Contains(e.Error, "authentication required") {
		t.Fatalf("unexpected error %q", e.Error)
	}

	// The connection survives: auth still works afterwards.
	c.send(protocol.NewAuthFrame(testToken))
	c.send(protocol.NewStartFrame("abc", "f.txt", 4, ""))
	ack := expect[*protocol.StartAck](c)
	if ack.Offset != 0 {
		t.Fatalf("offset = %d, want 0", ack.Offset)
	}
}

func expectError(c *wsClient) *protocol.ErrorEvent {
	c.t.Helper()
	for i := 0; i < 32; i++ {
		if e, ok := c.recv().(*protocol.ErrorEvent); ok {
			return e
		}
	}
	c.t.Fatalf("expected error event never arrived")
	panic("unreachable")
}

func TestMalformedFrameIsDroppedNotFatal(t *testing.T) {
	_, wsURL := newTestRelay(t, newMemForwarder(), newMemMeta())
	c := dialRelay(t, wsURL, testToken)

	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(`{"action":"teleport"}`)); err != nil {
		t.Fatal(err)
	}
	e := expectError(c)
	if e.Error != "invalid frame" {
		t.Fatalf("unexpected error %q", e.Error)
	}

	c.send(protocol.NewStartFrame("still-alive", "f.txt", 1, ""))
	expect[*protocol.StartAck](c)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.StagingDir = t.TempDir()
	cfg.Server.DownloadsDir = t.TempDir()
	cfg.Server.NoMDNS = true
	cfg.Forward.UploadURL = "http://127.0.0.1:1/api/upload"

	srv, err := New(cfg, stubVerifier{}, newMemMeta(), newMemForwarder())
	if err != nil {
		t.Fatal(err)
	}
	wsURL, err := srv.Start()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = srv.Shutdown() }()

	base := "http" + strings.TrimSuffix(strings.TrimPrefix(wsURL, "ws"), "/ws")

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Fatalf("health body = %v", body)
	}

	resp2, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", resp2.StatusCode)
	}
	metricsBody, _ := io.ReadAll(resp2.Body)
	if len(metricsBody) < 100 {
		t.Error("metrics response too short")
	}
}
