package commands

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/lqhuy/ferry/internal/discovery"
	"github.com/lqhuy/ferry/internal/ui"
)

// Search executes the search command.
func Search(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	fs.Usage = searchHelp
	timeout := fs.Duration("timeout", 3*time.Second, "discovery timeout")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	fmt.Println("Searching for ferry relays on the local network...")
	fmt.Println()

	services, err := discovery.Browse(context.Background(), *timeout)
	if err != nil {
		return fmt.Errorf("relay discovery failed: %w", err)
	}

	if len(services) == 0 {
		fmt.Println("No relays found")
		return nil
	}

	fmt.Printf("Found %d relay", len(services))
	if len(services) != 1 {
		fmt.Print("s")
	}
	fmt.Println(":")
	fmt.Println()

	for i, svc := range services {
		fmt.Printf("%d. %s\n", i+1, svc.Name)
		fmt.Printf("   Address: %s:%d\n", svc.IP, svc.Port)
		fmt.Printf("   URL: %s\n", svc.WSURL)
		if i < len(services)-1 {
			fmt.Println()
		}
	}

	return nil
}

func searchHelp() {
	c := ui.Colors
	fmt.Println(c.Bold + c.Green + "ferry search" + c.Reset + " - Discover nearby relays via mDNS")
	fmt.Println()
	fmt.Println(c.Bold + "Usage:" + c.Reset)
	fmt.Println("  " + c.Green + "ferry search" + c.Reset + " [flags]")
	fmt.Println()
	fmt.Println(c.Bold + "Flags:" + c.Reset)
	fmt.Println("  " + c.Yellow + "--timeout" + c.Reset + "          duration to wait for responses (default: 3s)")
	fmt.Println()
	fmt.Println(c.Bold + "Examples:" + c.Reset)
	fmt.Println("  " + c.Green + "ferry search" + c.Reset + "                  " + c.Dim + "# Search with the default 3s timeout" + c.Reset)
	fmt.Println("  " + c.Green + "ferry search" + c.Reset + " --timeout 5s     " + c.Dim + "# Search longer on sleepy networks" + c.Reset)
}
