package commands

import (
	"fmt"
	"os"

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
	case "init":
		path := config.GetConfigPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s", path)
		}
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return ferrors.ConfigError("Failed to write config file", err)
		}
		fmt.Printf("Wrote default config to %s\n", path)

	case "show":
		cfg, err := config.LoadConfig()
		if err != nil {
			return ferrors.ConfigError("Failed to load configuration", err)
		}
		fmt.Println(c.Bold + "Current Configuration:" + c.Reset)
		fmt.Printf("  Config file: %s\n", config.GetConfigPath())
		fmt.Println()
		fmt.Printf("  %-22s %q\n", "Listen Address:", cfg.Server.ListenAddr)
		fmt.Printf("  %-22s %d\n", "Port:", cfg.Server.Port)
		fmt.Printf("  %-22s %s\n", "Staging Dir:", cfg.Server.StagingDir)
		fmt.Printf("  %-22s %s\n", "Downloads Dir:", cfg.Server.DownloadsDir)
		fmt.Printf("  %-22s %s\n", "Database:", cfg.Server.DBPath)
		fmt.Printf("  %-22s %d GB\n", "Max File Size:", cfg.Server.MaxFileSize/(1024*1024*1024))
		fmt.Printf("  %-22s %v\n", "mDNS Disabled:", cfg.Server.NoMDNS)
		fmt.Println()
		fmt.Printf("  %-22s %s\n", "Forward Backend:", cfg.Forward.Backend)
		fmt.Printf("  %-22s %s\n", "Forward URL:", cfg.Forward.UploadURL)
		fmt.Printf("  %-22s %v\n", "Forward Timeout:", cfg.Forward.Timeout)
		if cfg.Forward.Backend == "s3" {
			fmt.Printf("  %-22s %s\n", "S3 Bucket:", cfg.Forward.S3.Bucket)
			fmt.Printf("  %-22s %s\n", "S3 Region:", cfg.Forward.S3.Region)
		}
		fmt.Println()
		fmt.Printf("  %-22s %v\n", "HTTP/3 Downloads:", cfg.Download.HTTP3)
		fmt.Printf("  %-22s %.1f Mbps\n", "Download Rate Limit:", cfg.Download.RateLimitMbps)
		fmt.Printf("  %-22s %q\n", "Janitor Schedule:", cfg.Janitor.Schedule)
		fmt.Printf("  %-22s %v\n", "Janitor Max Age:", cfg.Janitor.MaxAge)

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

func configHelp() {
	c := ui.Colors
	fmt.Println(c.Bold + c.Green + "ferryd config" + c.Reset + " - Inspect the configuration")
	fmt.Println()
	fmt.Println(c.Bold + "Usage:" + c.Reset)
	fmt.Println("  " + c.Green + "ferryd config init" + c.Reset + "   " + c.Dim + "# Write a default config file" + c.Reset)
	fmt.Println("  " + c.Green + "ferryd config show" + c.Reset + "   " + c.Dim + "# Print effective settings" + c.Reset)
	fmt.Println("  " + c.Green + "ferryd config path" + c.Reset + "   " + c.Dim + "# Print the config file location" + c.Reset)
}
