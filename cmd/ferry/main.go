package main

import (
	"fmt"
	"os"

	"github.com/lqhuy/ferry/cmd/ferry/commands"
	"github.com/lqhuy/ferry/internal/logging"
	"github.com/lqhuy/ferry/internal/ui"
)

var version = "dev"

func main() {
	defer logging.Sync()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "upload":
		err = commands.Upload(os.Args[2:])
	case "fetch":
		err = commands.Fetch(os.Args[2:])
	case "watch":
		err = commands.Watch(os.Args[2:])
	case "search":
		err = commands.Search(os.Args[2:])
	case "config":
		err = commands.Config(os.Args[2:])
	case "version":
		fmt.Printf("ferry %s\n", version)
	case "-h", "--help", "help":
		usage()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Colors.Red+"Error:"+ui.Colors.Reset, err)
		os.Exit(1)
	}
}

func usage() {
	c := ui.Colors
	fmt.Println(c.Bold + "ferry" + c.Reset + " - resumable transfers through a ferry relay")
	fmt.Println()
	fmt.Println(c.Bold + "Usage:" + c.Reset)
	fmt.Println("  " + c.Green + "ferry upload" + c.Reset + " [flags] <path>")
	fmt.Println("  " + c.Green + "ferry fetch" + c.Reset + " [flags] <url>")
	fmt.Println("  " + c.Green + "ferry watch" + c.Reset + " [flags] <dir>")
	fmt.Println("  " + c.Green + "ferry search" + c.Reset + " [flags]")
	fmt.Println("  " + c.Green + "ferry config" + c.Reset + " [show|set|path]")
	fmt.Println("  " + c.Green + "ferry version" + c.Reset)
	fmt.Println()
	fmt.Println(c.Bold + "Commands:" + c.Reset)
	fmt.Println("  " + c.Magenta + "upload" + c.Reset + "   Send a file through the relay; re-run to resume")
	fmt.Println("  " + c.Magenta + "fetch" + c.Reset + "    Have the relay download a URL server-side")
	fmt.Println("  " + c.Magenta + "watch" + c.Reset + "    Upload every file that appears in a directory")
	fmt.Println("  " + c.Magenta + "search" + c.Reset + "   Discover relays on the local network via mDNS")
	fmt.Println("  " + c.Magenta + "config" + c.Reset + "   Manage client settings (relay URL, token)")
	fmt.Println()
	fmt.Println(c.Dim + "Run 'ferry <command> --help' for command flags." + c.Reset)
}
