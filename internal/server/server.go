package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quic-go/quic-go/http3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lqhuy/ferry/internal/auth"
	"github.com/lqhuy/ferry/internal/config"
	"github.com/lqhuy/ferry/internal/discovery"
	"github.com/lqhuy/ferry/internal/forward"
	"github.com/lqhuy/ferry/internal/logging"
	"github.com/lqhuy/ferry/internal/network"
)

// FileMeta is the record the relay hands to the metadata store when a
// transfer begins or a download lands.
type FileMeta struct {
	FileID       string
	Name         string
	OriginalName string
	Size         uint64
	UserID       int64
	Uploader     string
	FolderID     string
	Status       string
}

// FileState is the durable outcome of a transfer, consulted when the
// session itself is no longer registered.
type FileState struct {
	Status string
	Path   string
}

// MetadataStore is the relay's view of the external file-metadata store.
// Records are addressed by the opaque id returned from InsertFile;
// LookupFile resolves the latest record for a wire file id, yielding
// (nil, nil) when none exists.
type MetadataStore interface {
	InsertFile(ctx context.Context, rec FileMeta) (int64, error)
	UpdateFileStatus(ctx context.Context, id int64, status, finalPath string) error
	LookupFile(ctx context.Context, fileID string) (*FileState, error)
}

// Server is the transfer relay: it owns the websocket endpoint, the session
// registry, the staging area and the background janitor, and consumes the
// auth store, metadata store and forwarder through interfaces.
type Server struct {
	cfg       *config.Config
	verifier  auth.Verifier
	meta      MetadataStore
	forwarder forward.Forwarder
	staging   *Staging

	reg registry

	downloadClient  *http.Client
	downloadLimiter *rate.Limiter

	httpServer *http.Server
	listener   net.Listener
	advertiser *discovery.Advertiser
	janitor    *janitor

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// New assembles a relay from its configuration and collaborators.
func New(cfg *config.Config, verifier auth.Verifier, meta MetadataStore, fwd forward.Forwarder) (*Server, error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}

	staging, err := NewStaging(cfg.Server.StagingDir)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(cfg.Server.DownloadsDir); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:             cfg,
		verifier:        verifier,
		meta:            meta,
		forwarder:       fwd,
		staging:         staging,
		downloadLimiter: newBandwidthLimiter(cfg.Download.RateLimitMbps),
	}
	s.downloadClient = newDownloadClient(cfg.Download.HTTP3)
	s.shutdownCtx, s.shutdownCancel = context.WithCancel(context.Background())
	return s, nil
}

// newDownloadClient builds the engine's HTTP client. The timeout covers
// the header round trip only; bodies stream for as long as they need.
func newDownloadClient(http3Enabled bool) *http.Client {
	if http3Enabled {
		return &http.Client{Transport: &http3.Transport{}}
	}
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:          16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: DownloadRequestTimeout,
		},
	}
}

// Start binds the listener and begins serving. It returns the websocket
// URL clients should dial.
func (s *Server) Start() (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.ListenAddr, s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		// Websocket connections are long-lived; no read/write timeouts.
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Error("http server stopped", zap.Error(err))
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	host := s.cfg.Server.ListenAddr
	if host == "" {
		if ip, err := network.DiscoverLANIP(""); err == nil {
			host = ip.String()
		} else {
			host = "localhost"
		}
	}
	wsURL := fmt.Sprintf("ws://%s:%d/ws", host, port)

	if !s.cfg.Server.NoMDNS {
		instance := fmt.Sprintf("ferry-%d", port)
		adv, err := discovery.Advertise(instance, "/ws", net.ParseIP(host), port)
		if err != nil {
			logging.Warn("mDNS advertise failed", zap.Error(err))
		} else {
			s.advertiser = adv
		}
	}

	if s.cfg.Janitor.Schedule != "" {
		j, err := startJanitor(s, s.cfg.Janitor.Schedule, s.cfg.Janitor.MaxAge)
		if err != nil {
			logging.Warn("janitor not started", zap.Error(err))
		} else {
			s.janitor = j
		}
	}

	logging.Info("relay listening",
		zap.String("url", wsURL),
		zap.String("staging", s.staging.Dir()),
		zap.String("forward", s.forwarder.Name()))
	return wsURL, nil
}

// Shutdown stops the relay gracefully: background work is cancelled (which
// pauses in-flight downloads), the advertiser withdrawn, and the HTTP
// server drained. Staging files stay in place for the next run to adopt.
func (s *Server) Shutdown() error {
	s.shutdownCancel()

	if s.advertiser != nil {
		s.advertiser.Close()
	}
	if s.janitor != nil {
		s.janitor.stop()
	}
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// handleHealth reports liveness for probes and the ferry search UX.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory path is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
