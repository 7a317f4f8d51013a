package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360/streamsync/errors"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{MaxAttempts: 5}.WithDefaults()

	d := DefaultConfig()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, d.InitialDelay, cfg.InitialDelay)
	assert.Equal(t, d.FailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, d.Cooldown, cfg.Cooldown)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative attempts", func(c *Config) { c.MaxAttempts = -1 }},
		{"max below initial", func(c *Config) { c.MaxDelay = c.InitialDelay / 2 }},
		{"shrinking multiplier", func(c *Config) { c.Multiplier = 0.5 }},
		{"negative threshold", func(c *Config) { c.FailureThreshold = -3 }},
		{"negative cooldown", func(c *Config) { c.Cooldown = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestNewExecutor_RejectsInvalidConfig(t *testing.T) {
	_, err := NewExecutor(Config{Multiplier: 0.1})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestCallOptions(t *testing.T) {
	c := callConfig{cfg: DefaultConfig()}
	WithMaxAttempts(0)(&c)
	assert.Equal(t, 3, c.cfg.MaxAttempts, "ignored")

	WithMaxAttempts(7)(&c)
	assert.Equal(t, 7, c.cfg.MaxAttempts)

	WithBackoff(time.Minute, 0)(&c)
	assert.Equal(t, time.Minute, c.cfg.InitialDelay)
	assert.Equal(t, time.Minute, c.cfg.MaxDelay, "max raised to initial")

	WithBackoff(0, time.Hour)(&c)
	assert.Equal(t, time.Hour, c.cfg.MaxDelay)
}
