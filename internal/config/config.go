package config

import "time"

// Config is the root configuration shared by wsclient and pushserver.
type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Server  ServerConfig  `yaml:"server"`
	Journal JournalConfig `yaml:"journal"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// ClientConfig holds command client settings.
type ClientConfig struct {
	Endpoint         string          `yaml:"endpoint"`     // ws://, wss:// or a path relative to PageURL
	PageURL          string          `yaml:"page_url"`     // Base for relative endpoints (e.g. https://app.example.com/)
	Identity         string          `yaml:"identity"`     // Sent as the first frame after open
	DispatchURL      string          `yaml:"dispatch_url"` // Where command events are forwarded; empty = log only
	EventName        string          `yaml:"event_name"`   // "onGlobalCommand" or legacy "fireGlobalCommand"
	AutoConnect      *bool           `yaml:"auto_connect"`
	HandshakeTimeout time.Duration   `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration   `yaml:"write_timeout"`
	DispatchBuffer   int             `yaml:"dispatch_buffer"`
	Reconnect        ReconnectConfig `yaml:"reconnect"`
	KeepAlive        KeepAliveConfig `yaml:"keep_alive"`
	Dispatch         DispatchConfig  `yaml:"dispatch"`
}

// ReconnectConfig holds the exponential backoff policy.
type ReconnectConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// KeepAliveConfig holds the PING heartbeat policy.
type KeepAliveConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// DispatchConfig holds settings for forwarding command events over HTTP.
type DispatchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// ServerConfig holds push hub settings.
type ServerConfig struct {
	ListenAddr            string        `yaml:"listen_addr"`
	Endpoint              string        `yaml:"endpoint"`
	AllowedOrigins        []string      `yaml:"allowed_origins"`
	AllowedOriginPatterns []string      `yaml:"allowed_origin_patterns"`
	HeartbeatSchedule     string        `yaml:"heartbeat_schedule"` // cron schedule, e.g. "@every 30s"; empty disables
	BroadcastConcurrency  int           `yaml:"broadcast_concurrency"`
	WriteTimeout          time.Duration `yaml:"write_timeout"`
	ShutdownTimeout       time.Duration `yaml:"shutdown_timeout"`
}

// JournalConfig controls the optional PostgreSQL push journal.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds slog handler settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// AutoConnectEnabled reports whether the client should connect on startup.
func (c ClientConfig) AutoConnectEnabled() bool {
	return c.AutoConnect == nil || *c.AutoConnect
}

// IsEnabled reports whether keep-alive pings are on. Unset means enabled.
func (k KeepAliveConfig) IsEnabled() bool {
	return k.Enabled == nil || *k.Enabled
}
