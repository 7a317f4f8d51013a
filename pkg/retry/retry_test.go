package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry_Success(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    false, // Disable for predictable tests
	}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	cause := errors.New("forbidden")

	attempts := 0
	err := Do(context.Background(), DefaultConfig(), func() error {
		attempts++
		return NonRetryable(cause)
	})

	assert.Equal(t, 1, attempts)
	assert.True(t, IsNonRetryable(err))
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, NonRetryable(nil))
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Less(t, attempts, 5)
}

func TestRetry_BackoffTiming(t *testing.T) {
	cfg := Config{
		MaxAttempts:  4,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	var delays []time.Duration
	cfg.OnRetry = func(_ int, _ error, delay time.Duration) {
		delays = append(delays, delay)
	}

	start := time.Now()
	_ = Do(context.Background(), cfg, func() error {
		return errors.New("error")
	})

	// 10ms + 20ms + 40ms
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, delays)
}

func TestRetry_InvalidConfig(t *testing.T) {
	fn := func() error { return nil }

	assert.Error(t, Do(context.Background(), Config{InitialDelay: -1}, fn))
	assert.Error(t, Do(context.Background(), Config{MaxDelay: -1}, fn))
	assert.Error(t, Do(context.Background(), Config{Multiplier: -1}, fn))
	assert.Error(t, Do(context.Background(), Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}, fn))
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	prev := time.Duration(0)
	for i, want := range expected {
		got := BackoffDelay(base, 2.0, max, i+1)
		assert.Equal(t, want, got, "attempt %d", i+1)
		assert.GreaterOrEqual(t, got, prev, "delays must not decrease")
		prev = got
	}

	assert.Equal(t, base, BackoffDelay(base, 2.0, max, 0))
	assert.Equal(t, max, BackoffDelay(base, 2.0, max, 10_000))
	assert.Equal(t, base, BackoffDelay(base, 0.5, max, 5), "multipliers below 1 do not shrink the delay")
}

func TestJitter_Bounds(t *testing.T) {
	d := 100 * time.Millisecond
	low := 75 * time.Millisecond
	high := 125 * time.Millisecond

	sawBelow, sawAbove := false, false
	for i := 0; i < 2000; i++ {
		j := Jitter(d)
		assert.GreaterOrEqual(t, j, low)
		assert.LessOrEqual(t, j, high)
		if j < d {
			sawBelow = true
		}
		if j > d {
			sawAbove = true
		}
	}
	assert.True(t, sawBelow, "jitter should sometimes shorten the delay")
	assert.True(t, sawAbove, "jitter should sometimes lengthen the delay")
	assert.Equal(t, time.Duration(0), Jitter(0))
}

func TestRetry_WithResult(t *testing.T) {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	result, err := DoWithResult(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("not ready")
		}
		return "success", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 3, attempts)
}

func TestRetry_Presets(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.True(t, cfg.AddJitter)
}

func TestRetry_ZeroAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{MaxAttempts: 0}, func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func BenchmarkRetry_Success(b *testing.B) {
	ctx := context.Background()
	cfg := Config{MaxAttempts: 1, InitialDelay: time.Millisecond}

	for i := 0; i < b.N; i++ {
		_ = Do(ctx, cfg, func() error {
			return nil
		})
	}
}
