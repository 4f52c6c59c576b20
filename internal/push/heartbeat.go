package push

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Broadcaster sends the heartbeat frame to all sessions.
type Broadcaster interface {
	BroadcastHeartbeat(ctx context.Context) (int, error)
}

// Heartbeat broadcasts PING on a cron schedule so idle sessions are not
// dropped by proxies.
type Heartbeat struct {
	cron    *cron.Cron
	target  Broadcaster
	timeout time.Duration
	logger  *slog.Logger
}

// NewHeartbeat parses schedule (standard cron or a descriptor such as
// "@every 30s") and binds it to target.
func NewHeartbeat(schedule string, target Broadcaster, timeout time.Duration, logger *slog.Logger) (*Heartbeat, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hb := &Heartbeat{
		cron:    cron.New(),
		target:  target,
		timeout: timeout,
		logger:  logger.With("component", "heartbeat"),
	}

	if _, err := hb.cron.AddFunc(schedule, hb.beat); err != nil {
		return nil, fmt.Errorf("parse heartbeat schedule %q: %w", schedule, err)
	}

	return hb, nil
}

// Start begins running the schedule.
func (hb *Heartbeat) Start() {
	hb.cron.Start()
	hb.logger.Info("heartbeat started")
}

// Stop halts the schedule and waits for a running beat to finish.
func (hb *Heartbeat) Stop(ctx context.Context) error {
	done := hb.cron.Stop()

	select {
	case <-done.Done():
		hb.logger.Info("heartbeat stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (hb *Heartbeat) beat() {
	ctx, cancel := context.WithTimeout(context.Background(), hb.timeout)
	defer cancel()

	n, err := hb.target.BroadcastHeartbeat(ctx)
	if err != nil {
		hb.logger.Warn("heartbeat broadcast failed", "error", err, "delivered", n)
		return
	}
	hb.logger.Debug("heartbeat sent", "sessions", n)
}
