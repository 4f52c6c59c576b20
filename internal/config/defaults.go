package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultEndpoint             = "/ws-commands"
	DefaultEventName            = "onGlobalCommand"
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultDispatchBuffer       = 1000
	DefaultMaxAttempts          = 10
	DefaultInitialDelay         = 1 * time.Second
	DefaultMaxDelay             = 30 * time.Second
	DefaultBackoffMultiplier    = 1.5
	DefaultKeepAliveInterval    = 30 * time.Second
	DefaultDispatchTimeout      = 10 * time.Second
	DefaultDispatchMaxRetries   = 3
	DefaultDispatchRetryBackoff = 500 * time.Millisecond
	DefaultListenAddr           = ":8080"
	DefaultBroadcastConcurrency = 16
	DefaultShutdownTimeout      = 10 * time.Second
	DefaultJournalBatchSize     = 100
	DefaultJournalFlushInterval = 1 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultMetricsPath          = "/metrics"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

// DefaultAllowedOrigins accepts any origin.
var DefaultAllowedOrigins = []string{"*"}

func (c *Config) applyDefaults() {
	c.Client.applyDefaults()
	c.Server.applyDefaults()

	if c.Journal.Enabled {
		if c.Journal.BatchSize == 0 {
			c.Journal.BatchSize = DefaultJournalBatchSize
		}
		if c.Journal.FlushInterval == 0 {
			c.Journal.FlushInterval = DefaultJournalFlushInterval
		}
		applyDBDefaults(&c.Journal.Database)
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func (c *ClientConfig) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.EventName == "" {
		c.EventName = DefaultEventName
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.DispatchBuffer == 0 {
		c.DispatchBuffer = DefaultDispatchBuffer
	}

	// Reconnect defaults
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}
	if c.Reconnect.InitialDelay == 0 {
		c.Reconnect.InitialDelay = DefaultInitialDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.Reconnect.BackoffMultiplier == 0 {
		c.Reconnect.BackoffMultiplier = DefaultBackoffMultiplier
	}

	if c.KeepAlive.Interval == 0 {
		c.KeepAlive.Interval = DefaultKeepAliveInterval
	}

	// Dispatch defaults
	if c.Dispatch.Timeout == 0 {
		c.Dispatch.Timeout = DefaultDispatchTimeout
	}
	if c.Dispatch.MaxRetries == 0 {
		c.Dispatch.MaxRetries = DefaultDispatchMaxRetries
	}
	if c.Dispatch.RetryBackoff == 0 {
		c.Dispatch.RetryBackoff = DefaultDispatchRetryBackoff
	}
}

func (s *ServerConfig) applyDefaults() {
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.Endpoint == "" {
		s.Endpoint = DefaultEndpoint
	}
	if s.AllowedOrigins == nil && s.AllowedOriginPatterns == nil {
		s.AllowedOrigins = append([]string(nil), DefaultAllowedOrigins...)
	}
	if s.BroadcastConcurrency == 0 {
		s.BroadcastConcurrency = DefaultBroadcastConcurrency
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
