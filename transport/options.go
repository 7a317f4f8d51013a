package transport

import (
	"log/slog"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/metric"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithName labels metrics and logs. Defaults to "transport".
func WithName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.name = name
		}
	}
}

// WithMetricsRegistry exports transport metrics through registry.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) {
		m.registry = registry
	}
}

// WithDialer fixes the dialer. Without it the dialer is chosen per URL by
// DialerForURL.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithStateChangeCallback observes every state transition.
func WithStateChangeCallback(fn func(from, to State)) Option {
	return func(m *Manager) {
		m.onStateChange = fn
	}
}

// WithTerminalFailureCallback observes the reconnection cap being reached.
// Automatic reconnection stays off until the next Connect.
func WithTerminalFailureCallback(fn func(err error)) Option {
	return func(m *Manager) {
		m.onTerminal = fn
	}
}

// WithOverflowCallback observes messages rejected by a full outage queue.
func WithOverflowCallback(fn func(msg *Message)) Option {
	return func(m *Manager) {
		m.onOverflow = fn
	}
}

// WithDropCallback observes every permanently dropped outbound message.
func WithDropCallback(fn func(msg *Message, reason string)) Option {
	return func(m *Manager) {
		m.onDrop = fn
	}
}

// WithHandlerErrorCallback observes handler failures.
func WithHandlerErrorCallback(fn func(err *errors.HandlerError)) Option {
	return func(m *Manager) {
		m.onHandlerError = fn
	}
}
