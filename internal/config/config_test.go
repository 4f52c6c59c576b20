package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
client:
  endpoint: /ws-commands
  page_url: https://app.example.com/
  identity: z_desktop_1
  reconnect:
    max_attempts: 15
    initial_delay: 2s
    max_delay: 1m
    backoff_multiplier: 2.0
  keep_alive:
    enabled: false
server:
  listen_addr: ":9000"
  allowed_origins: ["https://app.example.com"]
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Client.Identity != "z_desktop_1" {
		t.Errorf("Client.Identity = %q, want %q", cfg.Client.Identity, "z_desktop_1")
	}
	if cfg.Client.Reconnect.MaxAttempts != 15 {
		t.Errorf("Reconnect.MaxAttempts = %d, want 15", cfg.Client.Reconnect.MaxAttempts)
	}
	if cfg.Client.Reconnect.InitialDelay != 2*time.Second {
		t.Errorf("Reconnect.InitialDelay = %v, want 2s", cfg.Client.Reconnect.InitialDelay)
	}
	if cfg.Client.Reconnect.MaxDelay != time.Minute {
		t.Errorf("Reconnect.MaxDelay = %v, want 1m", cfg.Client.Reconnect.MaxDelay)
	}
	if cfg.Client.Reconnect.BackoffMultiplier != 2.0 {
		t.Errorf("Reconnect.BackoffMultiplier = %v, want 2.0", cfg.Client.Reconnect.BackoffMultiplier)
	}
	if cfg.Client.KeepAlive.IsEnabled() {
		t.Error("KeepAlive.IsEnabled() = true, want false")
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("Server.ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":9000")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DESKTOP_ID", "desktop-42")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
client:
  identity: ${TEST_DESKTOP_ID}
journal:
  enabled: true
  database:
    host: localhost
    name: push
    user: push
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Client.Identity != "desktop-42" {
		t.Errorf("Client.Identity = %q, want %q", cfg.Client.Identity, "desktop-42")
	}
	if cfg.Journal.Database.Password != "secret123" {
		t.Errorf("Journal.Database.Password = %q, want %q", cfg.Journal.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "client:\n  identity: d1\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Client.Endpoint != DefaultEndpoint {
		t.Errorf("Client.Endpoint = %q, want default %q", cfg.Client.Endpoint, DefaultEndpoint)
	}
	if cfg.Client.EventName != DefaultEventName {
		t.Errorf("Client.EventName = %q, want default %q", cfg.Client.EventName, DefaultEventName)
	}
	if cfg.Client.Reconnect.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Reconnect.MaxAttempts = %d, want default %d", cfg.Client.Reconnect.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Client.Reconnect.InitialDelay != DefaultInitialDelay {
		t.Errorf("Reconnect.InitialDelay = %v, want default %v", cfg.Client.Reconnect.InitialDelay, DefaultInitialDelay)
	}
	if cfg.Client.Reconnect.MaxDelay != DefaultMaxDelay {
		t.Errorf("Reconnect.MaxDelay = %v, want default %v", cfg.Client.Reconnect.MaxDelay, DefaultMaxDelay)
	}
	if cfg.Client.Reconnect.BackoffMultiplier != DefaultBackoffMultiplier {
		t.Errorf("Reconnect.BackoffMultiplier = %v, want default %v", cfg.Client.Reconnect.BackoffMultiplier, DefaultBackoffMultiplier)
	}
	if !cfg.Client.KeepAlive.IsEnabled() {
		t.Error("KeepAlive should default to enabled")
	}
	if cfg.Client.KeepAlive.Interval != DefaultKeepAliveInterval {
		t.Errorf("KeepAlive.Interval = %v, want default %v", cfg.Client.KeepAlive.Interval, DefaultKeepAliveInterval)
	}
	if !cfg.Client.AutoConnectEnabled() {
		t.Error("AutoConnect should default to enabled")
	}
	if cfg.Server.Endpoint != DefaultEndpoint {
		t.Errorf("Server.Endpoint = %q, want default %q", cfg.Server.Endpoint, DefaultEndpoint)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("Server.AllowedOrigins = %v, want [*]", cfg.Server.AllowedOrigins)
	}
	if cfg.Journal.Database.Port != 0 {
		t.Errorf("Journal.Database.Port = %d, want 0 while journal is disabled", cfg.Journal.Database.Port)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.HasPrefix(err.Error(), "read config file:") {
		t.Errorf("error = %q, want read config file prefix", err.Error())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *Config) { c.Client.Reconnect.BackoffMultiplier = 0.5 },
			wantErr: "client.reconnect.backoff_multiplier must be >= 1, got 0.5",
		},
		{
			name:    "max delay below initial",
			mutate:  func(c *Config) { c.Client.Reconnect.MaxDelay = 10 * time.Millisecond },
			wantErr: "client.reconnect.max_delay (10ms) cannot be less than initial_delay (1s)",
		},
		{
			name:    "page url without host",
			mutate:  func(c *Config) { c.Client.PageURL = "/relative" },
			wantErr: `client.page_url must include a host, got "/relative"`,
		},
		{
			name:    "endpoint without slash",
			mutate:  func(c *Config) { c.Server.Endpoint = "ws-commands" },
			wantErr: `server.endpoint must start with /, got "ws-commands"`,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: `log.level must be one of debug, info, warn, error, got "trace"`,
		},
		{
			name: "journal missing host",
			mutate: func(c *Config) {
				c.Journal = JournalConfig{Enabled: true, BatchSize: 10, FlushInterval: time.Second}
				c.Journal.Database = DBConfig{Name: "db", User: "u", Password: "p", MaxConns: 5}
			},
			wantErr: "journal.database.host is required",
		},
		{
			name: "journal min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Journal = JournalConfig{Enabled: true, BatchSize: 10, FlushInterval: time.Second}
				c.Journal.Database = DBConfig{Host: "localhost", Name: "db", User: "u", Password: "p", MaxConns: 5, MinConns: 10}
			},
			wantErr: "journal.database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "journal without batch size",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Database = DBConfig{Host: "localhost", Name: "db", User: "u", Password: "p", MaxConns: 5}
			},
			wantErr: "journal.batch_size must be positive, got 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestValidateHeartbeatSchedule(t *testing.T) {
	cfg := Defaults()
	cfg.Server.HeartbeatSchedule = "@every 30s"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}

	cfg.Server.HeartbeatSchedule = "not a schedule"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for bad heartbeat schedule")
	}
}

func TestValidateClient(t *testing.T) {
	cfg := Defaults()
	if err := cfg.ValidateClient(); err == nil || err.Error() != "client.identity is required" {
		t.Errorf("ValidateClient() error = %v, want identity required", err)
	}

	cfg.Client.Identity = "d1"
	if err := cfg.ValidateClient(); err == nil || err.Error() != "client.page_url is required for a relative client.endpoint" {
		t.Errorf("ValidateClient() error = %v, want page_url required", err)
	}

	cfg.Client.Endpoint = "wss://push.example.com/ws-commands"
	if err := cfg.ValidateClient(); err != nil {
		t.Errorf("ValidateClient() unexpected error: %v", err)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "identity", "desktop-1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"identity":"desktop-1"`) {
		t.Errorf("expected JSON record, got %s", out)
	}

	if lvl := (LogConfig{Level: "bogus"}).SlogLevel(); lvl != slog.LevelInfo {
		t.Errorf("SlogLevel() = %v, want info", lvl)
	}
}
