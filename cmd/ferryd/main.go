package main

import (
	"fmt"
	"os"

	"github.com/lqhuy/ferry/cmd/ferryd/commands"
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
	case "serve":
		err = commands.Serve(os.Args[2:])
	case "user":
		err = commands.User(os.Args[2:])
	case "token":
		err = commands.Token(os.Args[2:])
	case "config":
		err = commands.Config(os.Args[2:])
	case "version":
		fmt.Printf("ferryd %s\n", version)
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
	fmt.Println(c.Bold + "ferryd" + c.Reset + " - resumable file transfer relay")
	fmt.Println()
	fmt.Println(c.Bold + "Usage:" + c.Reset)
	fmt.Println("  " + c.Green + "ferryd serve" + c.Reset + " [flags]")
	fmt.Println("  " + c.Green + "ferryd user" + c.Reset + " add <username> | list")
	fmt.Println("  " + c.Green + "ferryd token" + c.Reset + " issue <username>")
	fmt.Println("  " + c.Green + "ferryd config" + c.Reset + " [show|path]")
	fmt.Println("  " + c.Green + "ferryd version" + c.Reset)
	fmt.Println()
	fmt.Println(c.Bold + "Commands:" + c.Reset)
	fmt.Println("  " + c.Magenta + "serve" + c.Reset + "    Run the relay server")
	fmt.Println("  " + c.Magenta + "user" + c.Reset + "     Manage accounts in the relay's store")
	fmt.Println("  " + c.Magenta + "token" + c.Reset + "    Issue bearer tokens for clients")
	fmt.Println("  " + c.Magenta + "config" + c.Reset + "   Inspect the configuration file")
	fmt.Println()
	fmt.Println(c.Dim + "Run 'ferryd <command> --help' for command flags." + c.Reset)
}
