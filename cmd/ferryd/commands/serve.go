package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lqhuy/ferry/internal/config"
	ferrors "github.com/lqhuy/ferry/internal/errors"
	"github.com/lqhuy/ferry/internal/forward"
	"github.com/lqhuy/ferry/internal/logging"
	"github.com/lqhuy/ferry/internal/server"
	"github.com/lqhuy/ferry/internal/store"
	"github.com/lqhuy/ferry/internal/ui"
)

// metaStore adapts the SQLite store to the relay's metadata interface.
type metaStore struct {
	s *store.Store
}

func (m metaStore) InsertFile(ctx context.Context, rec server.FileMeta) (int64, error) {
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

func (m metaStore) UpdateFileStatus(ctx context.Context, id int64, status, finalPath string) error {
	return m.s.UpdateFileStatus(ctx, id, status, finalPath)
}

func (m metaStore) LookupFile(ctx context.Context, fileID string) (*server.FileState, error) {
	rec, err := m.s.LookupFileByID(ctx, fileID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &server.FileState{Status: rec.Status, Path: rec.Path}, nil
}

// Serve executes the serve command.
func Serve(args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return ferrors.ConfigError("Failed to load configuration", err)
	}

	verbosity, filteredArgs := countVerbosity(args)

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Usage = serveHelp
	port := fs.Int("port", cfg.Server.Port, "listen port")
	fs.IntVar(port, "p", cfg.Server.Port, "")
	listenAddr := fs.String("listen", cfg.Server.ListenAddr, "listen address (empty = all interfaces)")
	stagingDir := fs.String("staging", cfg.Server.StagingDir, "staging directory for partial uploads")
	downloadsDir := fs.String("downloads", cfg.Server.DownloadsDir, "destination for fetched URLs")
	dbPath := fs.String("db", cfg.Server.DBPath, "sqlite database path")
	noQR := fs.Bool("no-qr", cfg.Server.NoQR, "skip printing the QR code")
	noMDNS := fs.Bool("no-mdns", cfg.Server.NoMDNS, "disable mDNS advertisement")
	if err := fs.Parse(filteredArgs); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	if verbosity > 0 {
		logging.SetLevel(verbosity)
	}

	cfg.Server.Port = *port
	cfg.Server.ListenAddr = *listenAddr
	cfg.Server.StagingDir = *stagingDir
	cfg.Server.DownloadsDir = *downloadsDir
	cfg.Server.DBPath = *dbPath
	cfg.Server.NoQR = *noQR
	cfg.Server.NoMDNS = *noMDNS

	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		return ferrors.StoreError("open database", err)
	}
	defer st.Close()

	fwd, err := buildForwarder(cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, st, metaStore{st}, fwd)
	if err != nil {
		return fmt.Errorf("failed to build relay: %w", err)
	}

	wsURL, err := srv.Start()
	if err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}
	defer func() { _ = srv.Shutdown() }()

	c := ui.Colors
	fmt.Fprintf(os.Stderr, "Staging uploads in '%s', forwarding via %s\n", cfg.Server.StagingDir, fwd.Name())
	if !cfg.Server.NoQR {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, c.Bold+"Scan to connect from another device:"+c.Reset)
		_ = ui.PrintQR(wsURL)
	}
	fmt.Fprintf(os.Stderr, "\n"+c.Green+"Relay endpoint:"+c.Reset+"\n%s\n", wsURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")

	return nil
}

// buildForwarder picks the configured forwarding backend.
func buildForwarder(cfg *config.Config) (forward.Forwarder, error) {
	switch cfg.Forward.Backend {
	case "", "http":
		return forward.NewHTTP(cfg.Forward), nil
	case "s3":
		return forward.NewS3(context.Background(), cfg.Forward.S3)
	default:
		return nil, ferrors.ConfigError(
			fmt.Sprintf("Unknown forward backend %q (want \"http\" or \"s3\")", cfg.Forward.Backend), nil)
	}
}

func serveHelp() {
	c := ui.Colors
	fmt.Println(c.Bold + c.Green + "ferryd serve" + c.Reset + " - Run the transfer relay")
	fmt.Println()
	fmt.Println(c.Bold + "Usage:" + c.Reset)
	fmt.Println("  " + c.Green + "ferryd serve" + c.Reset + " [flags]")
	fmt.Println()
	fmt.Println(c.Bold + "Description:" + c.Reset)
	fmt.Println("  Accept chunked uploads over websocket, stage them on disk, and")
	fmt.Println("  forward completed files downstream. Interrupted transfers resume")
	fmt.Println("  from the staged bytes on the next run.")
	fmt.Println()
	fmt.Println(c.Bold + "Flags:" + c.Reset)
	fmt.Println("  " + c.Yellow + "-p, --port" + c.Reset + "        listen port (default from config)")
	fmt.Println("  " + c.Yellow + "--listen" + c.Reset + "          listen address, empty for all interfaces")
	fmt.Println("  " + c.Yellow + "--staging" + c.Reset + "         staging directory for partial uploads")
	fmt.Println("  " + c.Yellow + "--downloads" + c.Reset + "       destination directory for fetched URLs")
	fmt.Println("  " + c.Yellow + "--db" + c.Reset + "              sqlite database path")
	fmt.Println("  " + c.Yellow + "--no-qr" + c.Reset + "           skip printing the QR code")
	fmt.Println("  " + c.Yellow + "--no-mdns" + c.Reset + "         disable mDNS advertisement")
	fmt.Println("  " + c.Yellow + "-v, --verbose" + c.Reset + "     verbose logging (repeat for more detail)")
	fmt.Println()
	fmt.Println(c.Bold + "Examples:" + c.Reset)
	fmt.Println("  " + c.Green + "ferryd serve" + c.Reset + "                          " + c.Dim + "# Defaults from config file" + c.Reset)
	fmt.Println("  " + c.Green + "ferryd serve" + c.Reset + " -p 9000 --staging /srv   " + c.Dim + "# Custom port and staging dir" + c.Reset)
}
