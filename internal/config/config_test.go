package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lqhuy/ferry/internal/protocol"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8765 {
		t.Errorf("Expected port 8765, got %d", cfg.Server.Port)
	}

	if cfg.Server.MaxFileSize != 10737418240 {
		t.Errorf("Expected MaxFileSize 10737418240, got %d", cfg.Server.MaxFileSize)
	}

	if cfg.Forward.Backend != "http" {
		t.Errorf("Expected http forward backend, got %s", cfg.Forward.Backend)
	}

	if cfg.Forward.Timeout != 300*time.Second {
		t.Errorf("Expected 300s forward timeout, got %v", cfg.Forward.Timeout)
	}

	if cfg.Forward.ConnectTimeout != 30*time.Second {
		t.Errorf("Expected 30s connect timeout, got %v", cfg.Forward.ConnectTimeout)
	}

	if cfg.Client.ChunkSize != protocol.DefaultChunkSize {
		t.Errorf("Expected chunk size %d, got %d", protocol.DefaultChunkSize, cfg.Client.ChunkSize)
	}

	if cfg.Janitor.Schedule != "" {
		t.Errorf("Expected janitor disabled by default, got schedule %q", cfg.Janitor.Schedule)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	originalHome := os.Getenv("HOME")
	_ = os.Setenv("HOME", tmpDir)
	defer func() { _ = os.Setenv("HOME", originalHome) }()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 8765 {
		t.Errorf("Expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Client.WSURL != "ws://localhost:8765/ws" {
		t.Errorf("Expected default ws_url, got %s", cfg.Client.WSURL)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	originalHome := os.Getenv("HOME")
	_ = os.Setenv("HOME", tmpDir)
	defer func() { _ = os.Setenv("HOME", originalHome) }()

	configDir := filepath.Join(tmpDir, ".config", "ferry")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	yaml := `server:
  port: 9100
  staging_dir: /var/lib/ferry/staging
forward:
  upload_url: https://files.example.com/api/upload
  timeout: 45s
client:
  ws_url: ws://relay.local:9100/ws
  chunk_size: 131072
`
	if err := os.WriteFile(filepath.Join(configDir, "ferry.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Server.StagingDir != "/var/lib/ferry/staging" {
		t.Errorf("staging_dir = %s", cfg.Server.StagingDir)
	}
	if cfg.Forward.UploadURL != "https://files.example.com/api/upload" {
		t.Errorf("upload_url = %s", cfg.Forward.UploadURL)
	}
	if cfg.Forward.Timeout != 45*time.Second {
		t.Errorf("timeout = %v, want 45s", cfg.Forward.Timeout)
	}
	if cfg.Client.ChunkSize != 131072 {
		t.Errorf("chunk_size = %d, want 131072", cfg.Client.ChunkSize)
	}

	// Untouched keys keep their defaults
	if cfg.Server.DownloadsDir != "downloads" {
		t.Errorf("downloads_dir = %s, want default", cfg.Server.DownloadsDir)
	}
}

func TestValidateServer(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Forward.UploadURL = "https://files.example.com/api/upload"
		return cfg
	}

	if err := base().ValidateServer(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing upload_url", func(c *Config) { c.Forward.UploadURL = "" }},
		{"relative upload_url", func(c *Config) { c.Forward.UploadURL = "/api/upload" }},
		{"ws upload_url", func(c *Config) { c.Forward.UploadURL = "ws://files.example.com" }},
		{"bad backend", func(c *Config) { c.Forward.Backend = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Forward.Backend = "s3"; c.Forward.S3.Bucket = "" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"empty staging dir", func(c *Config) { c.Server.StagingDir = "" }},
		{"empty db path", func(c *Config) { c.Server.DBPath = "" }},
		{"zero timeout", func(c *Config) { c.Forward.Timeout = 0 }},
		{"scheduled janitor without max_age", func(c *Config) { c.Janitor.Schedule = "@hourly"; c.Janitor.MaxAge = 0 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := base()
			c.mutate(cfg)
			if err := cfg.ValidateServer(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}

	s3 := base()
	s3.Forward.Backend = "s3"
	s3.Forward.S3.Bucket = "ferry-artifacts"
	s3.Forward.UploadURL = ""
	if err := s3.ValidateServer(); err != nil {
		t.Errorf("s3 backend without upload_url rejected: %v", err)
	}
}

func TestValidateClient(t *testing.T) {
	if err := DefaultConfig().ValidateClient(); err != nil {
		t.Fatalf("default client config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http scheme", func(c *Config) { c.Client.WSURL = "http://localhost:8765/ws" }},
		{"no host", func(c *Config) { c.Client.WSURL = "ws://" }},
		{"relative", func(c *Config) { c.Client.WSURL = "/ws" }},
		{"chunk too small", func(c *Config) { c.Client.ChunkSize = 512 }},
		{"chunk too large", func(c *Config) { c.Client.ChunkSize = 2 * 1024 * 1024 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := DefaultConfig()
			c.mutate(cfg)
			if err := cfg.ValidateClient(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	originalHome := os.Getenv("HOME")
	_ = os.Setenv("HOME", tmpDir)
	defer func() { _ = os.Setenv("HOME", originalHome) }()

	cfg := DefaultConfig()
	cfg.Server.Port = 9200
	cfg.Server.StagingDir = "/srv/ferry/staging"
	cfg.Forward.UploadURL = "https://files.example.com/api/upload"
	cfg.Download.RateLimitMbps = 100
	cfg.Client.WSURL = "wss://relay.example.com/ws"
	cfg.Client.ChunkSize = 262144

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	configPath := filepath.Join(tmpDir, ".config", "ferry", "ferry.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.Server.Port != cfg.Server.Port {
		t.Errorf("Port mismatch: expected %d, got %d", cfg.Server.Port, loaded.Server.Port)
	}
	if loaded.Server.StagingDir != cfg.Server.StagingDir {
		t.Errorf("StagingDir mismatch: expected %s, got %s", cfg.Server.StagingDir, loaded.Server.StagingDir)
	}
	if loaded.Forward.UploadURL != cfg.Forward.UploadURL {
		t.Errorf("UploadURL mismatch: expected %s, got %s", cfg.Forward.UploadURL, loaded.Forward.UploadURL)
	}
	if loaded.Download.RateLimitMbps != cfg.Download.RateLimitMbps {
		t.Errorf("RateLimitMbps mismatch: expected %.1f, got %.1f", cfg.Download.RateLimitMbps, loaded.Download.RateLimitMbps)
	}
	if loaded.Client.ChunkSize != cfg.Client.ChunkSize {
		t.Errorf("ChunkSize mismatch: expected %d, got %d", cfg.Client.ChunkSize, loaded.Client.ChunkSize)
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()
	if path == "" {
		t.Error("GetConfigPath returned empty string")
	}

	if !filepath.IsAbs(path) && path != "~/.config/ferry/ferry.yaml" {
		t.Errorf("GetConfigPath returned unexpected relative path: %s", path)
	}
}
