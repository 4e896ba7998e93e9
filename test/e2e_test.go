package test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lqhuy/ferry/internal/client"
	"github.com/lqhuy/ferry/internal/config"
	"github.com/lqhuy/ferry/internal/forward"
	"github.com/lqhuy/ferry/internal/server"
	"github.com/lqhuy/ferry/internal/store"
)

// ANSI color codes for readable test output
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorGreen = "\033[32m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"

	symbolPass = "✓"
	symbolInfo = "ℹ"
	symbolTest = "→"
)

func logTest(t *testing.T, format string, args ...any) {
	t.Logf("%s%s%s %s", colorCyan, symbolTest, colorReset, fmt.Sprintf(format, args...))
}

func logPass(t *testing.T, format string, args ...any) {
	t.Logf("%s%s PASS%s %s", colorGreen, symbolPass, colorReset, fmt.Sprintf(format, args...))
}

func logInfo(t *testing.T, format string, args ...any) {
	t.Logf("%s%s INFO%s %s", colorBlue, symbolInfo, colorReset, fmt.Sprintf(format, args...))
}

// metaAdapter exposes the SQLite store through the relay's metadata
// interface, the same bridging ferryd does.
type metaAdapter struct{ s *store.Store }

func (m metaAdapter) InsertFile(ctx context.Context, rec server.FileMeta) (int64, error) {
	return m.s.InsertFile(ctx, store.FileRecord{
		FileID:       rec.FileID,
		Name:         rec.Name,
		OriginalName: rec.OriginalName,
		Size:         rec.Size,
		UserID:       rec.UserID,
		Uploader:     rec.Uploader,
		FolderID:     rec.FolderID,
		Status:       rec.Status,
	})
}

func (m metaAdapter) UpdateFileStatus(ctx context.Context, id int64, status, finalPath string) error {
	return m.s.UpdateFileStatus(ctx, id, status, finalPath)
}

func (m metaAdapter) LookupFile(ctx context.Context, fileID string) (*server.FileState, error) {
	rec, err := m.s.LookupFileByID(ctx, fileID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &server.FileState{Status: rec.Status, Path: rec.Path}, nil
}

// downstream is the HTTP receiver completed uploads are forwarded to.
type downstream struct {
	mu    sync.Mutex
	files map[string][]byte // X-File-Name -> body
}

func newDownstream() *downstream {
	return &downstream{files: make(map[string][]byte)}
}

func (d *downstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		name := r.Header.Get("X-File-Name")
		d.mu.Lock()
		d.files[name] = body
		d.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":true,"file_path":"/files/%s"}`, name)
	}
}

func (d *downstream) file(name string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.files[name]
	return b, ok
}

// relayFixture is one fully assembled relay: SQLite store, HTTP forwarder,
// listening server, and a token for the test user.
type relayFixture struct {
	srv   *server.Server
	wsURL string
	token string
	cfg   *config.Config
	sink  *downstream
}

func startRelay(t *testing.T) *relayFixture {
	t.Helper()

	sink := newDownstream()
	ds := httptest.NewServer(sink.handler())
	t.Cleanup(ds.Close)

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "ferry.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	if _, err := st.CreateUser(ctx, "alice", "hunter2"); err != nil {
		t.Fatal(err)
	}
	token, err := st.IssueToken(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.StagingDir = filepath.Join(dir, "staging")
	cfg.Server.DownloadsDir = filepath.Join(dir, "downloads")
	cfg.Server.DBPath = filepath.Join(dir, "ferry.db")
	cfg.Server.NoMDNS = true
	cfg.Forward.UploadURL = ds.URL + "/api/upload"

	srv, err := server.New(cfg, st, metaAdapter{st}, forward.NewHTTP(cfg.Forward))
	if err != nil {
		t.Fatal(err)
	}
	wsURL, err := srv.Start()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = srv.Shutdown() })

	logInfo(t, "relay listening at %s", wsURL)
	return &relayFixture{srv: srv, wsURL: wsURL, token: token, cfg: cfg, sink: sink}
}

func writeRandomFile(t *testing.T, name string, size int) (path string, sum string) {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}
	path = filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	h := sha256.Sum256(data)
	return path, hex.EncodeToString(h[:])
}

func TestE2EUploadRoundTrip(t *testing.T) {
	fx := startRelay(t)

	path, wantSum := writeRandomFile(t, "report.bin", 1<<20)
	logTest(t, "uploading 1 MiB file through the relay")

	c, err := client.Dial(context.Background(), fx.wsURL, fx.token)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var lastDone, lastTotal uint64
	up, err := c.NewUpload(path, "", 64*1024, func(done, total uint64) {
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatal(err)
	}

	finalPath, err := up.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if finalPath != "/files/report.bin" {
		t.Fatalf("finalPath = %q", finalPath)
	}
	if lastDone != lastTotal || lastTotal != 1<<20 {
		t.Fatalf("final progress %d/%d", lastDone, lastTotal)
	}

	body, ok := fx.sink.file("report.bin")
	if !ok {
		t.Fatal("downstream never received the file")
	}
	h := sha256.Sum256(body)
	if hex.EncodeToString(h[:]) != wantSum {
		t.Fatal("forwarded bytes differ from the source file")
	}

	// Staging must be empty after a successful forward.
	entries, err := os.ReadDir(fx.cfg.Server.StagingDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging not cleaned: %d entries", len(entries))
	}
	logPass(t, "upload forwarded intact, staging clean")
}

func TestE2EUploadInterruptAndResume(t *testing.T) {
	fx := startRelay(t)

	path, wantSum := writeRandomFile(t, "big.bin", 2<<20)

	logTest(t, "first attempt: cancel mid-transfer")
	c1, err := client.Dial(context.Background(), fx.wsURL, fx.token)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	up1, err := c1.NewUpload(path, "", 64*1024, func(done, total uint64) {
		if done >= total/4 {
			cancel()
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := up1.Run(ctx); err == nil {
		t.Fatal("cancelled run should not succeed")
	}
	_ = c1.Close()

	logTest(t, "second attempt: same file resumes and completes")
	c2, err := client.Dial(context.Background(), fx.wsURL, fx.token)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	var resumedFrom uint64
	first := true
	up2, err := c2.NewUpload(path, "", 64*1024, func(done, total uint64) {
		if first {
			resumedFrom, first = done, false
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if up2.FileID != up1.FileID {
		t.Fatalf("file id changed across runs: %s vs %s", up1.FileID, up2.FileID)
	}

	finalPath, err := up2.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	logInfo(t, "resumed from offset %d, final path %s", resumedFrom, finalPath)

	body, ok := fx.sink.file("big.bin")
	if !ok {
		t.Fatal("downstream never received the file")
	}
	h := sha256.Sum256(body)
	if hex.EncodeToString(h[:]) != wantSum {
		t.Fatal("reassembled bytes differ from the source file")
	}
	logPass(t, "interrupted upload resumed without re-sending everything")
}

func TestE2EPauseResumeUpload(t *testing.T) {
	fx := startRelay(t)

	path, _ := writeRandomFile(t, "paced.bin", 512*1024)

	c, err := client.Dial(context.Background(), fx.wsURL, fx.token)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var once sync.Once
	var up *client.Upload
	up, err = c.NewUpload(path, "", 32*1024, func(done, total uint64) {
		if done > 0 && done < total {
			once.Do(func() {
				_ = up.Pause()
				go func() {
					time.Sleep(200 * time.Millisecond)
					_ = up.Resume()
				}()
			})
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := up.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := fx.sink.file("paced.bin"); !ok {
		t.Fatal("downstream never received the file")
	}
	logPass(t, "upload survived a pause/resume round trip")
}

func TestE2EDownloadToRelay(t *testing.T) {
	fx := startRelay(t)

	payload := bytes.Repeat([]byte("ferry"), 64*1024)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer origin.Close()

	c, err := client.Dial(context.Background(), fx.wsURL, fx.token)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	logTest(t, "asking the relay to fetch %d bytes", len(payload))
	dl, err := c.StartDownload(context.Background(), origin.URL+"/bundle.dat", "")
	if err != nil {
		t.Fatal(err)
	}

	savedPath, err := dl.Wait(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(fx.cfg.Server.DownloadsDir, "alice", "bundle.dat")
	if savedPath != want {
		t.Fatalf("saved to %q, want %q", savedPath, want)
	}
	got, err := os.ReadFile(savedPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("saved bytes differ from the origin payload")
	}
	logPass(t, "server-side download landed in the user directory")
}

func TestE2EBadTokenRejected(t *testing.T) {
	fx := startRelay(t)

	c, err := client.Dial(context.Background(), fx.wsURL, "not-a-real-token")
	if err != nil {
		// Some dials observe the policy close during the handshake read.
		logInfo(t, "dial rejected immediately: %v", err)
		return
	}
	defer c.Close()

	select {
	case <-c.Done():
		if c.Err() == nil {
			t.Fatal("connection closed without an error")
		}
		logPass(t, "relay closed the connection: %v", c.Err())
	case <-time.After(5 * time.Second):
		t.Fatal("relay kept an unauthenticated connection open")
	}
}
