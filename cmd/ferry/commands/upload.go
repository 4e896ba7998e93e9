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

// Upload executes the upload command.
func Upload(args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return ferrors.ConfigError("Failed to load configuration", err)
	}

	verbosity, filteredArgs := countVerbosity(args)

	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	fs.Usage = uploadHelp
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
		uploadHelp()
		return fmt.Errorf("usage: ferry upload [flags] <path>")
	}
	path := fs.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, *wsURL, *token)
	if err != nil {
		return err
	}
	defer c.Close()

	bar := &ui.Bar{Out: os.Stderr}
	up, err := c.NewUpload(path, *folder, *chunkSize, bar.Update)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Uploading %s (%s)\n", up.FileName, ui.FormatBytes(int64(up.Size)))

	finalPath, err := up.Run(ctx)
	bar.Finish()
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, ui.Colors.Yellow+"Interrupted; re-run the same command to resume."+ui.Colors.Reset)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, ui.Colors.Green+"Done:"+ui.Colors.Reset+" %s\n", finalPath)
	return nil
}

func uploadHelp() {
	c := ui.Colors
	fmt.Println(c.Bold + c.Green + "ferry upload" + c.Reset + " - Send a file through the relay")
	fmt.Println()
	fmt.Println(c.Bold + "Usage:" + c.Reset)
	fmt.Println("  " + c.Green + "ferry upload" + c.Reset + " [flags] <path>")
	fmt.Println()
	fmt.Println(c.Bold + "Description:" + c.Reset)
	fmt.Println("  Streams the file to the relay in chunks. An interrupted upload")
	fmt.Println("  resumes from the relay's staged bytes when re-run.")
	fmt.Println()
	fmt.Println(c.Bold + "Flags:" + c.Reset)
	fmt.Println("  " + c.Yellow + "--url" + c.Reset + "             relay websocket URL")
	fmt.Println("  " + c.Yellow + "--token" + c.Reset + "           bearer token")
	fmt.Println("  " + c.Yellow + "--folder" + c.Reset + "          destination folder id")
	fmt.Println("  " + c.Yellow + "--chunk-size" + c.Reset + "      chunk size in bytes")
	fmt.Println("  " + c.Yellow + "-v, --verbose" + c.Reset + "     verbose logging")
	fmt.Println()
	fmt.Println(c.Bold + "Examples:" + c.Reset)
	fmt.Println("  " + c.Green + "ferry upload" + c.Reset + " video.mp4")
	fmt.Println("  " + c.Green + "ferry upload" + c.Reset + " --folder 42 report.pdf")
}
