package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks that all values are usable. Call after defaults are applied.
func (c *Config) Validate() error {
	if err := c.Client.validate(); err != nil {
		return err
	}
	if err := c.Server.validate(); err != nil {
		return err
	}

	if c.Journal.Enabled {
		if c.Journal.BatchSize < 1 {
			return fmt.Errorf("journal.batch_size must be positive, got %d", c.Journal.BatchSize)
		}
		if c.Journal.FlushInterval <= 0 {
			return errors.New("journal.flush_interval must be positive")
		}
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// ValidateClient validates the config and additionally requires the fields
// a standalone command client cannot run without.
func (c *Config) ValidateClient() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Client.Identity == "" {
		return errors.New("client.identity is required")
	}
	isAbsolute := strings.HasPrefix(c.Client.Endpoint, "ws://") || strings.HasPrefix(c.Client.Endpoint, "wss://")
	if !isAbsolute && c.Client.PageURL == "" {
		return errors.New("client.page_url is required for a relative client.endpoint")
	}
	return nil
}

func (c *ClientConfig) validate() error {
	if c.PageURL != "" {
		u, err := url.Parse(c.PageURL)
		if err != nil {
			return fmt.Errorf("client.page_url: %w", err)
		}
		if u.Host == "" {
			return fmt.Errorf("client.page_url must include a host, got %q", c.PageURL)
		}
	}
	if c.DispatchBuffer < 1 {
		return errors.New("client.dispatch_buffer must be >= 1")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return errors.New("client.reconnect.max_attempts must be >= 0")
	}
	if c.Reconnect.InitialDelay < 0 {
		return errors.New("client.reconnect.initial_delay must be >= 0")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("client.reconnect.max_delay (%v) cannot be less than initial_delay (%v)",
			c.Reconnect.MaxDelay, c.Reconnect.InitialDelay)
	}
	if c.Reconnect.BackoffMultiplier < 1 {
		return fmt.Errorf("client.reconnect.backoff_multiplier must be >= 1, got %v", c.Reconnect.BackoffMultiplier)
	}
	if c.KeepAlive.IsEnabled() && c.KeepAlive.Interval <= 0 {
		return errors.New("client.keep_alive.interval must be > 0 when keep-alive is enabled")
	}
	if c.Dispatch.MaxRetries < 0 {
		return errors.New("client.dispatch.max_retries must be >= 0")
	}
	return nil
}

func (s *ServerConfig) validate() error {
	if !strings.HasPrefix(s.Endpoint, "/") {
		return fmt.Errorf("server.endpoint must start with /, got %q", s.Endpoint)
	}
	if s.BroadcastConcurrency < 1 {
		return errors.New("server.broadcast_concurrency must be >= 1")
	}
	if s.HeartbeatSchedule != "" {
		if _, err := cron.ParseStandard(s.HeartbeatSchedule); err != nil {
			return fmt.Errorf("server.heartbeat_schedule: %w", err)
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
