package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/streamsync/metric"
)

// Reauthenticator refreshes credentials after an authorization failure.
type Reauthenticator func(ctx context.Context) error

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ex *Executor) {
		if logger != nil {
			ex.logger = logger
		}
	}
}

// WithName labels metrics and logs. Defaults to "resilience".
func WithName(name string) Option {
	return func(ex *Executor) {
		if name != "" {
			ex.name = name
		}
	}
}

// WithMetricsRegistry exports executor metrics through registry.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(ex *Executor) {
		ex.registry = registry
	}
}

// WithReauthenticator sets the callback run once when an operation fails
// with an authorization error. Without one, such failures are final.
func WithReauthenticator(fn Reauthenticator) Option {
	return func(ex *Executor) {
		ex.reauth = fn
	}
}

// CallOption overrides executor settings for a single call.
type CallOption func(*callConfig)

type callConfig struct {
	cfg    Config
	reauth Reauthenticator
}

// WithMaxAttempts overrides Config.MaxAttempts. Values below 1 are ignored.
func WithMaxAttempts(n int) CallOption {
	return func(c *callConfig) {
		if n >= 1 {
			c.cfg.MaxAttempts = n
		}
	}
}

// WithBackoff overrides the initial and maximum retry delay.
func WithBackoff(initial, max time.Duration) CallOption {
	return func(c *callConfig) {
		if initial > 0 {
			c.cfg.InitialDelay = initial
		}
		if max > 0 {
			c.cfg.MaxDelay = max
		}
		if c.cfg.MaxDelay < c.cfg.InitialDelay {
			c.cfg.MaxDelay = c.cfg.InitialDelay
		}
	}
}

// WithCallReauthenticator replaces the executor's reauthenticator for one call.
func WithCallReauthenticator(fn Reauthenticator) CallOption {
	return func(c *callConfig) {
		c.reauth = fn
	}
}
