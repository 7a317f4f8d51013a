package transport

import (
	"fmt"
	"time"

	"github.com/c360/streamsync/errors"
)

// Config holds the tunables of a Manager. Zero values are replaced by the
// defaults from DefaultConfig when the manager is built.
type Config struct {
	// URL is used when Connect is called with an empty address.
	URL string `json:"url" yaml:"url"`

	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`

	// Reconnection backoff: delay(n) = min(ReconnectDelay × ReconnectMultiplier^(n-1), MaxReconnectDelay)
	ReconnectDelay       time.Duration `json:"reconnect_delay" yaml:"reconnect_delay"`
	ReconnectMultiplier  float64       `json:"reconnect_multiplier" yaml:"reconnect_multiplier"`
	MaxReconnectDelay    time.Duration `json:"max_reconnect_delay" yaml:"max_reconnect_delay"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`

	HeartbeatInterval    time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	StaleTimeout         time.Duration `json:"stale_timeout" yaml:"stale_timeout"`
	StaleCheckInterval   time.Duration `json:"stale_check_interval" yaml:"stale_check_interval"`
	LatencyProbeInterval time.Duration `json:"latency_probe_interval" yaml:"latency_probe_interval"`
	LatencyProbeTimeout  time.Duration `json:"latency_probe_timeout" yaml:"latency_probe_timeout"`

	BatchSize            int           `json:"batch_size" yaml:"batch_size"`
	BatchTimeout         time.Duration `json:"batch_timeout" yaml:"batch_timeout"`
	CompressionEnabled   bool          `json:"compression_enabled" yaml:"compression_enabled"`
	CompressionThreshold int           `json:"compression_threshold" yaml:"compression_threshold"`

	// MessageBufferSize is the outage-queue depth above which warnings are logged.
	MessageBufferSize      int           `json:"message_buffer_size" yaml:"message_buffer_size"`
	MaxQueueSize           int           `json:"max_queue_size" yaml:"max_queue_size"`
	RetentionWindow        time.Duration `json:"retention_window" yaml:"retention_window"`
	RetentionSweepInterval time.Duration `json:"retention_sweep_interval" yaml:"retention_sweep_interval"`
	MaxRetries             int           `json:"max_retries" yaml:"max_retries"`

	HandlerWorkers   int `json:"handler_workers" yaml:"handler_workers"`
	HandlerQueueSize int `json:"handler_queue_size" yaml:"handler_queue_size"`

	// DedupWindow drops inbound messages whose id was already seen within
	// the window. Zero disables the filter. DedupSize bounds the ids kept.
	DedupWindow time.Duration `json:"dedup_window" yaml:"dedup_window"`
	DedupSize   int           `json:"dedup_size" yaml:"dedup_size"`
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:         10 * time.Second,
		ReconnectDelay:         time.Second,
		ReconnectMultiplier:    2,
		MaxReconnectDelay:      30 * time.Second,
		MaxReconnectAttempts:   10,
		HeartbeatInterval:      30 * time.Second,
		StaleTimeout:           60 * time.Second,
		StaleCheckInterval:     5 * time.Second,
		LatencyProbeInterval:   10 * time.Second,
		LatencyProbeTimeout:    5 * time.Second,
		BatchSize:              10,
		BatchTimeout:           100 * time.Millisecond,
		CompressionEnabled:     false,
		CompressionThreshold:   1024,
		MessageBufferSize:      1000,
		MaxQueueSize:           10000,
		RetentionWindow:        5 * time.Minute,
		RetentionSweepInterval: 30 * time.Second,
		MaxRetries:             3,
		HandlerWorkers:         8,
		HandlerQueueSize:       1024,
		DedupSize:              4096,
	}
}

// WithDefaults returns a copy of c where every zero field takes its default.
// Negative values are left alone for Validate to reject.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()

	setDuration := func(v *time.Duration, def time.Duration) {
		if *v == 0 {
			*v = def
		}
	}
	setInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}

	setDuration(&c.ConnectTimeout, d.ConnectTimeout)
	setDuration(&c.ReconnectDelay, d.ReconnectDelay)
	if c.ReconnectMultiplier == 0 {
		c.ReconnectMultiplier = d.ReconnectMultiplier
	}
	setDuration(&c.MaxReconnectDelay, d.MaxReconnectDelay)
	setInt(&c.MaxReconnectAttempts, d.MaxReconnectAttempts)
	setDuration(&c.HeartbeatInterval, d.HeartbeatInterval)
	setDuration(&c.StaleTimeout, d.StaleTimeout)
	setDuration(&c.StaleCheckInterval, d.StaleCheckInterval)
	setDuration(&c.LatencyProbeInterval, d.LatencyProbeInterval)
	setDuration(&c.LatencyProbeTimeout, d.LatencyProbeTimeout)
	setInt(&c.BatchSize, d.BatchSize)
	setDuration(&c.BatchTimeout, d.BatchTimeout)
	setInt(&c.CompressionThreshold, d.CompressionThreshold)
	setInt(&c.MessageBufferSize, d.MessageBufferSize)
	setInt(&c.MaxQueueSize, d.MaxQueueSize)
	setDuration(&c.RetentionWindow, d.RetentionWindow)
	setDuration(&c.RetentionSweepInterval, d.RetentionSweepInterval)
	setInt(&c.MaxRetries, d.MaxRetries)
	setInt(&c.HandlerWorkers, d.HandlerWorkers)
	setInt(&c.HandlerQueueSize, d.HandlerQueueSize)
	setInt(&c.DedupSize, d.DedupSize)
	return c
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"connect_timeout", c.ConnectTimeout},
		{"reconnect_delay", c.ReconnectDelay},
		{"max_reconnect_delay", c.MaxReconnectDelay},
		{"heartbeat_interval", c.HeartbeatInterval},
		{"stale_timeout", c.StaleTimeout},
		{"stale_check_interval", c.StaleCheckInterval},
		{"latency_probe_interval", c.LatencyProbeInterval},
		{"latency_probe_timeout", c.LatencyProbeTimeout},
		{"batch_timeout", c.BatchTimeout},
		{"retention_window", c.RetentionWindow},
		{"retention_sweep_interval", c.RetentionSweepInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return invalidConfig("%s must be positive, got %v", p.name, p.value)
		}
	}

	counts := []struct {
		name  string
		value int
	}{
		{"max_reconnect_attempts", c.MaxReconnectAttempts},
		{"batch_size", c.BatchSize},
		{"message_buffer_size", c.MessageBufferSize},
		{"max_queue_size", c.MaxQueueSize},
		{"handler_workers", c.HandlerWorkers},
		{"handler_queue_size", c.HandlerQueueSize},
		{"dedup_size", c.DedupSize},
	}
	for _, p := range counts {
		if p.value <= 0 {
			return invalidConfig("%s must be positive, got %d", p.name, p.value)
		}
	}

	if c.ReconnectMultiplier < 1 {
		return invalidConfig("reconnect_multiplier must be >= 1, got %v", c.ReconnectMultiplier)
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		return invalidConfig("max_reconnect_delay (%v) must be >= reconnect_delay (%v)",
			c.MaxReconnectDelay, c.ReconnectDelay)
	}
	if c.MaxRetries < 0 {
		return invalidConfig("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.DedupWindow < 0 {
		return invalidConfig("dedup_window must not be negative, got %v", c.DedupWindow)
	}
	if c.CompressionThreshold < 0 {
		return invalidConfig("compression_threshold must not be negative, got %d", c.CompressionThreshold)
	}
	if c.MessageBufferSize > c.MaxQueueSize {
		return invalidConfig("message_buffer_size (%d) must not exceed max_queue_size (%d)",
			c.MessageBufferSize, c.MaxQueueSize)
	}
	if c.StaleTimeout <= c.StaleCheckInterval {
		return invalidConfig("stale_timeout (%v) must exceed stale_check_interval (%v)",
			c.StaleTimeout, c.StaleCheckInterval)
	}
	if c.URL != "" {
		if _, err := ParseAddress(c.URL); err != nil {
			return err
		}
	}
	return nil
}

// ReconnectPolicy derives the reconnection policy from the configuration.
func (c Config) ReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   c.ReconnectDelay,
		Multiplier:  c.ReconnectMultiplier,
		MaxDelay:    c.MaxReconnectDelay,
		MaxAttempts: c.MaxReconnectAttempts,
	}
}

func invalidConfig(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...)),
		"Config", "Validate", "validate transport config")
}
