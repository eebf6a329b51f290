// Package link watches network connectivity for the node and re-establishes
// it with bounded, backed-off retries instead of a busy-wait loop, so the
// capture path stays responsive during an outage.
package link

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Link is the connectivity collaborator: the node polls Connected once per
// loop iteration and asks the monitor to Connect when it is down.
type Link interface {
	Connected() bool
	Connect() error
	Close() error
}

// Config tunes the reconnect backoff.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int
}

// DefaultConfig returns the reconnect tuning used when the configuration
// file leaves the link section empty.
func DefaultConfig() Config {
	return Config{
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		MaxRetries:     8,
	}
}

// Monitor wraps a Link with bounded-retry reconnect. Audio captured while a
// reconnect is in progress is absorbed by the capture cell's drop-oldest
// policy; the monitor itself never touches the capture path.
type Monitor struct {
	link   Link
	cfg    Config
	logger *slog.Logger

	reconnects uint64
}

// NewMonitor validates the backoff configuration.
func NewMonitor(l Link, cfg Config, logger *slog.Logger) (*Monitor, error) {
	if cfg.InitialBackoff <= 0 {
		return nil, fmt.Errorf("initial backoff must be positive, got %v", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		return nil, fmt.Errorf("max backoff %v below initial backoff %v", cfg.MaxBackoff, cfg.InitialBackoff)
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max retries must be at least 1, got %d", cfg.MaxRetries)
	}
	return &Monitor{link: l, cfg: cfg, logger: logger}, nil
}

// Ensure returns nil immediately when the link is up; otherwise it retries
// Connect with exponential backoff until it succeeds, the retry
// attempts are exhausted, or ctx is cancelled.
func (m *Monitor) Ensure(ctx context.Context) error {
	if m.link.Connected() {
		return nil
	}

	backoff := m.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := m.link.Connect(); err == nil {
			m.reconnects++
			m.logger.Info("link established",
				slog.Int("attempt", attempt),
				slog.Uint64("reconnects", m.reconnects),
			)
			return nil
		} else {
			lastErr = err
			m.logger.Warn("link connect failed",
				slog.Int("attempt", attempt),
				slog.Int("max_retries", m.cfg.MaxRetries),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)
		}

		if attempt == m.cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > m.cfg.MaxBackoff {
			backoff = m.cfg.MaxBackoff
		}
	}

	return fmt.Errorf("link down after %d attempts: %w", m.cfg.MaxRetries, lastErr)
}

// Reconnects returns how many times the monitor brought the link up.
func (m *Monitor) Reconnects() uint64 {
	return m.reconnects
}
