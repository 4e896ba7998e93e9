package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lqhuy/ferry/internal/protocol"
)

// Config represents the full application configuration. The relay reads the
// server, forward, download and janitor sections; the client CLI reads the
// client section. Both share one file so a machine can run either role.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Forward  ForwardConfig  `mapstructure:"forward"`
	Download DownloadConfig `mapstructure:"download"`
	Janitor  JanitorConfig  `mapstructure:"janitor"`
	Client   ClientConfig   `mapstructure:"client"`
}

// ServerConfig controls the relay's listener and staging layout.
type ServerConfig struct {
	ListenAddr   string `mapstructure:"listen_addr"` // empty = all interfaces
	Port         int    `mapstructure:"port"`
	StagingDir   string `mapstructure:"staging_dir"`
	DownloadsDir string `mapstructure:"downloads_dir"`
	DBPath       string `mapstructure:"db_path"`
	MaxFileSize  uint64 `mapstructure:"max_file_size"`
	NoMDNS       bool   `mapstructure:"no_mdns"`
	NoQR         bool   `mapstructure:"no_qr"`
}

// ForwardConfig controls where completed uploads are pushed.
type ForwardConfig struct {
	Backend        string        `mapstructure:"backend"` // "http" or "s3"
	UploadURL      string        `mapstructure:"upload_url"`
	ServerToken    string        `mapstructure:"server_token"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	S3             S3Config      `mapstructure:"s3"`
}

// S3Config holds the S3 forwarder backend settings.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"` // empty = AWS default
	KeyPrefix string `mapstructure:"key_prefix"`
	AccessKey string `mapstructure:"access_key"` // empty = default credential chain
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
}

// DownloadConfig controls the URL download engine.
type DownloadConfig struct {
	HTTP3         bool    `mapstructure:"http3"`
	RateLimitMbps float64 `mapstructure:"rate_limit_mbps"` // 0 = no limit
}

// JanitorConfig controls the optional stale-session sweeper. An empty
// schedule disables it; sessions then live until stop or completion.
type JanitorConfig struct {
	Schedule string        `mapstructure:"schedule"` // cron expression
	MaxAge   time.Duration `mapstructure:"max_age"`
}

// ClientConfig controls the client driver defaults.
type ClientConfig struct {
	WSURL     string `mapstructure:"ws_url"`
	Token     string `mapstructure:"token"`
	ChunkSize int    `mapstructure:"chunk_size"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   "",
			Port:         8765,
			StagingDir:   "staging",
			DownloadsDir: "downloads",
			DBPath:       "ferry.db",
			MaxFileSize:  10 * 1024 * 1024 * 1024, // 10GB
		},
		Forward: ForwardConfig{
			Backend:        "http",
			Timeout:        300 * time.Second,
			ConnectTimeout: 30 * time.Second,
		},
		Download: DownloadConfig{},
		Janitor: JanitorConfig{
			Schedule: "", // disabled
			MaxAge:   7 * 24 * time.Hour,
		},
		Client: ClientConfig{
			WSURL:     "ws://localhost:8765/ws",
			ChunkSize: protocol.DefaultChunkSize,
		},
	}
}

// LoadConfig loads configuration from file or creates default config
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("ferry")
	viper.SetConfigType("yaml")

	// Config paths in order of priority
	if homeDir, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".config", "ferry"))
		viper.AddConfigPath(homeDir) // for .ferry.yaml
	}
	viper.AddConfigPath("/etc/ferry")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("FERRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Aliases kept for compatibility with deployments that export the
	// bare variable names.
	_ = viper.BindEnv("client.ws_url", "FERRY_CLIENT_WS_URL", "WS_URL")
	_ = viper.BindEnv("client.token", "FERRY_CLIENT_TOKEN", "FERRY_TOKEN")
	_ = viper.BindEnv("forward.upload_url", "FERRY_FORWARD_UPLOAD_URL", "REMOTE_UPLOAD_URL")
	_ = viper.BindEnv("forward.server_token", "FERRY_FORWARD_SERVER_TOKEN", "REMOTE_SERVER_TOKEN")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found - use defaults (not an error)
			return config, nil
		}
		// Config file was found but another error occurred (parse error,
		// permission, etc.) - surface it so users know their config is broken
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// ValidateServer checks the settings the relay depends on.
func (c *Config) ValidateServer() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.StagingDir == "" {
		return fmt.Errorf("server.staging_dir is required")
	}
	if c.Server.DownloadsDir == "" {
		return fmt.Errorf("server.downloads_dir is required")
	}
	if c.Server.DBPath == "" {
		return fmt.Errorf("server.db_path is required")
	}

	switch c.Forward.Backend {
	case "http":
		if err := validateHTTPURL(c.Forward.UploadURL); err != nil {
			return fmt.Errorf("forward.upload_url: %w", err)
		}
	case "s3":
		if c.Forward.S3.Bucket == "" {
			return fmt.Errorf("forward.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("forward.backend must be %q or %q, got %q", "http", "s3", c.Forward.Backend)
	}

	if c.Forward.Timeout <= 0 {
		return fmt.Errorf("forward.timeout must be positive")
	}
	if c.Forward.ConnectTimeout <= 0 {
		return fmt.Errorf("forward.connect_timeout must be positive")
	}
	if c.Janitor.Schedule != "" && c.Janitor.MaxAge <= 0 {
		return fmt.Errorf("janitor.max_age must be positive when the janitor is scheduled")
	}
	return nil
}

// ValidateClient checks the settings the client driver depends on.
func (c *Config) ValidateClient() error {
	u, err := url.Parse(c.Client.WSURL)
	if err != nil {
		return fmt.Errorf("client.ws_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("client.ws_url must be an absolute ws:// or wss:// URL, got %q", c.Client.WSURL)
	}
	if u.Host == "" {
		return fmt.Errorf("client.ws_url is missing a host")
	}
	if c.Client.ChunkSize < protocol.MinChunkSize || c.Client.ChunkSize > protocol.MaxChunkSize {
		return fmt.Errorf("client.chunk_size %d outside allowed range %d-%d",
			c.Client.ChunkSize, protocol.MinChunkSize, protocol.MaxChunkSize)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an absolute http:// or https:// URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("is missing a host")
	}
	return nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(config *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "ferry")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "ferry.yaml")

	viper.Set("server.listen_addr", config.Server.ListenAddr)
	viper.Set("server.port", config.Server.Port)
	viper.Set("server.staging_dir", config.Server.StagingDir)
	viper.Set("server.downloads_dir", config.Server.DownloadsDir)
	viper.Set("server.db_path", config.Server.DBPath)
	viper.Set("server.max_file_size", config.Server.MaxFileSize)
	viper.Set("server.no_mdns", config.Server.NoMDNS)
	viper.Set("server.no_qr", config.Server.NoQR)
	viper.Set("forward.backend", config.Forward.Backend)
	viper.Set("forward.upload_url", config.Forward.UploadURL)
	viper.Set("forward.server_token", config.Forward.ServerToken)
	viper.Set("forward.timeout", config.Forward.Timeout.String())
	viper.Set("forward.connect_timeout", config.Forward.ConnectTimeout.String())
	viper.Set("forward.s3.bucket", config.Forward.S3.Bucket)
	viper.Set("forward.s3.region", config.Forward.S3.Region)
	viper.Set("forward.s3.endpoint", config.Forward.S3.Endpoint)
	viper.Set("forward.s3.key_prefix", config.Forward.S3.KeyPrefix)
	viper.Set("forward.s3.path_style", config.Forward.S3.PathStyle)
	viper.Set("download.http3", config.Download.HTTP3)
	viper.Set("download.rate_limit_mbps", config.Download.RateLimitMbps)
	viper.Set("janitor.schedule", config.Janitor.Schedule)
	viper.Set("janitor.max_age", config.Janitor.MaxAge.String())
	viper.Set("client.ws_url", config.Client.WSURL)
	viper.Set("client.token", config.Client.Token)
	viper.Set("client.chunk_size", config.Client.ChunkSize)

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "~/.config/ferry/ferry.yaml"
	}

	return filepath.Join(homeDir, ".config", "ferry", "ferry.yaml")
}
