package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lqhuy/ferry/internal/client"
	"github.com/lqhuy/ferry/internal/config"
	ferrors "github.com/lqhuy/ferry/internal/errors"
	"github.com/lqhuy/ferry/internal/logging"
	"github.com/lqhuy/ferry/internal/ui"
)

// Watch executes the watch command.
func Watch(args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return ferrors.ConfigError("Failed to load configuration", err)
	}

	verbosity, filteredArgs := countVerbosity(args)

	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	fs.Usage = watchHelp
	wsURL := fs.String("url", cfg.Client.WSURL, "relay websocket URL")
	token := fs.String("token", cfg.Client.Token, "bearer token")
	folder := fs.String("folder", "", "destination folder id")
	chunkSize := fs.Int("chunk-size", cfg.Client.ChunkSize, "chunk size in bytes")
	if err := fs.Parse(filteredArgs); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if verbosity > 0 {
		logging.SetLevel(verbosity)
	}
	if fs.NArg() != 1 {
		watchHelp()
		return fmt.Errorf("usage: ferry watch [flags] <dir>")
	}
	dir := fs.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, *wsURL, *token)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintf(os.Stderr, "Watching %s; press Ctrl-C to stop\n", dir)

	col := ui.Colors
	err = c.Watch(ctx, dir, *folder, *chunkSize, func(res client.WatchResult) {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, col.Red+"failed"+col.Reset+"  %s: %v\n", res.Path, res.Err)
			return
		}
		fmt.Fprintf(os.Stderr, col.Green+"sent"+col.Reset+"    %s -> %s\n", res.Path, res.FinalPath)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func watchHelp() {
	c := ui.Colors
	fmt.Println(c.Bold + c.Green + "ferry watch" + c.Reset + " - Upload files as they appear")
	fmt.Println()
	fmt.Println(c.Bold + "Usage:" + c.Reset)
	fmt.Println("  " + c.Green + "ferry watch" + c.Reset + " [flags] <dir>")
	fmt.Println()
	fmt.Println(c.Bold + "Description:" + c.Reset)
	fmt.Println("  Watches a directory and uploads each new file once it stops")
	fmt.Println("  changing. Useful for camera dumps and export folders.")
	fmt.Println()
	fmt.Println(c.Bold + "Flags:" + c.Reset)
	fmt.Println("  " + c.Yellow + "--url" + c.Reset + "             relay websocket URL")
	fmt.Println("  " + c.Yellow + "--token" + c.Reset + "           bearer token")
	fmt.Println("  " + c.Yellow + "--folder" + c.Reset + "          destination folder id")
	fmt.Println("  " + c.Yellow + "--chunk-size" + c.Reset + "      chunk size in bytes")
	fmt.Println("  " + c.Yellow + "-v, --verbose" + c.Reset + "     verbose logging")
}
