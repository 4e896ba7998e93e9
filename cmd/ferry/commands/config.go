package commands

import (
	"fmt"
	"strconv"

	"github.com/lqhuy/ferry/internal/config"
	ferrors "github.com/lqhuy/ferry/internal/errors"
	"github.com/lqhuy/ferry/internal/ui"
)

// Config executes the config command.
func Config(args []string) error {
	if len(args) == 0 {
		configHelp()
		return nil
	}

	c := ui.Colors
	switch args[0] {
	case "show":
		cfg, err := config.LoadConfig()
		if err != nil {
			return ferrors.ConfigError("Failed to load configuration", err)
		}
		fmt.Println(c.Bold + "Client Configuration:" + c.Reset)
		fmt.Printf("  Config file: %s\n", config.GetConfigPath())
		fmt.Println()
		fmt.Printf("  %-14s %s\n", "Relay URL:", cfg.Client.WSURL)
		fmt.Printf("  %-14s %s\n", "Token:", maskToken(cfg.Client.Token))
		fmt.Printf("  %-14s %d bytes\n", "Chunk Size:", cfg.Client.ChunkSize)

	case "set":
		if len(args) != 3 {
			return fmt.Errorf("usage: ferry config set <ws_url|token|chunk_size> <value>")
		}
		return configSet(args[1], args[2])

	case "path":
		fmt.Println(config.GetConfigPath())

	case "-h", "--help", "help":
		configHelp()

	default:
		configHelp()
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}

	return nil
}

func configSet(key, value string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return ferrors.ConfigError("Failed to load configuration", err)
	}

	switch key {
	case "ws_url":
		cfg.Client.WSURL = value
	case "token":
		cfg.Client.Token = value
	case "chunk_size":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("chunk_size must be a positive integer, got %q", value)
		}
		cfg.Client.ChunkSize = n
	default:
		return fmt.Errorf("unknown setting %q (want ws_url, token or chunk_size)", key)
	}

	if err := config.SaveConfig(cfg); err != nil {
		return ferrors.ConfigError("Failed to save configuration", err)
	}
	fmt.Printf("Set %s\n", key)
	return nil
}

func maskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func configHelp() {
	c := ui.Colors
	fmt.Println(c.Bold + c.Green + "ferry config" + c.Reset + " - Manage client settings")
	fmt.Println()
	fmt.Println(c.Bold + "Usage:" + c.Reset)
	fmt.Println("  " + c.Green + "ferry config show" + c.Reset + "                   " + c.Dim + "# Print current settings" + c.Reset)
	fmt.Println("  " + c.Green + "ferry config set" + c.Reset + " <key> <value>      " + c.Dim + "# ws_url, token or chunk_size" + c.Reset)
	fmt.Println("  " + c.Green + "ferry config path" + c.Reset + "                   " + c.Dim + "# Print the config file location" + c.Reset)
}
