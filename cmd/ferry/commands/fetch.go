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

// Fetch executes the fetch command.
func Fetch(args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return ferrors.ConfigError("Failed to load configuration", err)
	}

	verbosity, filteredArgs := countVerbosity(args)

	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	fs.Usage = fetchHelp
	wsURL := fs.String("url", cfg.Client.WSURL, "relay websocket URL")
	token := fs.String("token", cfg.Client.Token, "bearer token")
	name := fs.String("name", "", "saved filename (default: from the URL)")
	if err := fs.Parse(filteredArgs); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if verbosity > 0 {
		logging.SetLevel(verbosity)
	}
	if fs.NArg() != 1 {
		fetchHelp()
		return fmt.Errorf("usage: ferry fetch [flags] <url>")
	}
	target := fs.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, *wsURL, *token)
	if err != nil {
		return err
	}
	defer c.Close()

	dl, err := c.StartDownload(ctx, target, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Relay fetching %s as %s\n", dl.URL, dl.Filename)

	bar := &ui.Bar{Out: os.Stderr}
	savedPath, err := dl.Wait(ctx, bar.Update)
	bar.Finish()
	if errors.Is(err, context.Canceled) {
		// The relay keeps the partial; the next fetch of the same URL
		// resumes server-side.
		_ = dl.Pause()
		fmt.Fprintln(os.Stderr, ui.Colors.Yellow+"Interrupted; the relay kept the partial download."+ui.Colors.Reset)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, ui.Colors.Green+"Saved on relay:"+ui.Colors.Reset+" %s\n", savedPath)
	return nil
}

func fetchHelp() {
	c := ui.Colors
	fmt.Println(c.Bold + c.Green + "ferry fetch" + c.Reset + " - Download a URL on the relay")
	fmt.Println()
	fmt.Println(c.Bold + "Usage:" + c.Reset)
	fmt.Println("  " + c.Green + "ferry fetch" + c.Reset + " [flags] <url>")
	fmt.Println()
	fmt.Println(c.Bold + "Description:" + c.Reset)
	fmt.Println("  The relay downloads the URL into your downloads area, resuming")
	fmt.Println("  with HTTP range requests if the transfer is interrupted.")
	fmt.Println()
	fmt.Println(c.Bold + "Flags:" + c.Reset)
	fmt.Println("  " + c.Yellow + "--url" + c.Reset + "             relay websocket URL")
	fmt.Println("  " + c.Yellow + "--token" + c.Reset + "           bearer token")
	fmt.Println("  " + c.Yellow + "--name" + c.Reset + "            saved filename")
	fmt.Println("  " + c.Yellow + "-v, --verbose" + c.Reset + "     verbose logging")
}
