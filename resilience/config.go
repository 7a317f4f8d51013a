package resilience

import (
	"fmt"
	"time"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/pkg/retry"
)

// Config tunes retries and the per-operation circuit breakers.
type Config struct {
	// MaxAttempts counts every call of the operation, the first included.
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
	// DisableJitter turns off the ±25% spread applied to every delay.
	DisableJitter bool `json:"disable_jitter" yaml:"disable_jitter"`

	// FailureThreshold consecutive failures open an operation's breaker.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// Cooldown is how long an open breaker rejects calls before a trial.
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown"`

	// BatchConcurrency bounds ExecuteBatch. Zero or negative means unbounded.
	BatchConcurrency int `json:"batch_concurrency" yaml:"batch_concurrency"`
}

// DefaultConfig returns the default retry and breaker settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialDelay:     time.Second,
		MaxDelay:         30 * time.Second,
		Multiplier:       2,
		FailureThreshold: 5,
		Cooldown:         time.Minute,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = d.Multiplier
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Cooldown == 0 {
		c.Cooldown = d.Cooldown
	}
	return c
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return invalidConfig("max_attempts must be at least 1, got %d", c.MaxAttempts)
	case c.InitialDelay <= 0:
		return invalidConfig("initial_delay must be positive, got %v", c.InitialDelay)
	case c.MaxDelay < c.InitialDelay:
		return invalidConfig("max_delay %v is below initial_delay %v", c.MaxDelay, c.InitialDelay)
	case c.Multiplier < 1:
		return invalidConfig("multiplier must be >= 1, got %v", c.Multiplier)
	case c.FailureThreshold < 1:
		return invalidConfig("failure_threshold must be at least 1, got %d", c.FailureThreshold)
	case c.Cooldown <= 0:
		return invalidConfig("cooldown must be positive, got %v", c.Cooldown)
	}
	return nil
}

func (c Config) retryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  c.MaxAttempts,
		InitialDelay: c.InitialDelay,
		MaxDelay:     c.MaxDelay,
		Multiplier:   c.Multiplier,
		AddJitter:    !c.DisableJitter,
	}
}

func invalidConfig(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"resilience", "Config.Validate", "validate")
}
