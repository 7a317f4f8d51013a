package transport

import (
	"time"

	"github.com/c360/streamsync/pkg/retry"
)

// ReconnectPolicy computes reconnection delays and enforces the attempt cap.
// Unlike the resilience executor it applies no jitter: the delay for an
// attempt is exact.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// Delay returns min(BaseDelay × Multiplier^(attempt-1), MaxDelay) for a
// 1-indexed attempt.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	return retry.BackoffDelay(p.BaseDelay, p.Multiplier, p.MaxDelay, attempt)
}

// Exhausted reports whether attempts already made leave no attempt left.
func (p ReconnectPolicy) Exhausted(attemptsMade int) bool {
	return p.MaxAttempts > 0 && attemptsMade >= p.MaxAttempts
}
