package resilience

import (
	"fmt"
	"time"
)

// BreakerState is the position of one operation's circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("BreakerState(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON status output.
func (s BreakerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerStatus is a snapshot of one breaker.
type BreakerStatus struct {
	State BreakerState `json:"state"`
	// Failures is the current run of consecutive failures.
	Failures    int       `json:"failures"`
	OpenedAt    time.Time `json:"opened_at,omitempty"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	// RetryIn is the remaining cooldown of an open breaker.
	RetryIn time.Duration `json:"retry_in,omitempty"`
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	// outcomeNeutral releases a trial slot without moving the breaker,
	// used for failures caused by the caller rather than the remote side.
	outcomeNeutral
)

// breaker is not safe for concurrent use; Executor serializes access.
type breaker struct {
	state       BreakerState
	failures    int
	openedAt    time.Time
	lastFailure time.Time
	lastError   string
	trial       bool
}

// allow reports whether a call may proceed. An open breaker whose cooldown
// has elapsed moves to half-open and admits exactly one trial call.
func (b *breaker) allow(now time.Time, cooldown time.Duration) (time.Duration, bool) {
	switch b.state {
	case BreakerOpen:
		elapsed := now.Sub(b.openedAt)
		if elapsed < cooldown {
			return cooldown - elapsed, false
		}
		b.state = BreakerHalfOpen
		b.trial = true
		return 0, true
	case BreakerHalfOpen:
		if b.trial {
			return 0, false
		}
		b.trial = true
		return 0, true
	default:
		return 0, true
	}
}

// record applies a call outcome and returns the previous state.
func (b *breaker) record(o outcome, err error, now time.Time, threshold int) BreakerState {
	prev := b.state
	switch o {
	case outcomeSuccess:
		b.state = BreakerClosed
		b.failures = 0
		b.trial = false
	case outcomeNeutral:
		b.trial = false
	case outcomeFailure:
		b.failures++
		b.lastFailure = now
		if err != nil {
			b.lastError = err.Error()
		}
		switch b.state {
		case BreakerHalfOpen:
			b.state = BreakerOpen
			b.openedAt = now
			b.trial = false
		case BreakerClosed:
			if b.failures >= threshold {
				b.state = BreakerOpen
				b.openedAt = now
			}
		}
	}
	return prev
}

func (b *breaker) status(now time.Time, cooldown time.Duration) BreakerStatus {
	s := BreakerStatus{
		State:       b.state,
		Failures:    b.failures,
		LastFailure: b.lastFailure,
		LastError:   b.lastError,
	}
	if b.state != BreakerClosed {
		s.OpenedAt = b.openedAt
	}
	if b.state == BreakerOpen {
		if remaining := cooldown - now.Sub(b.openedAt); remaining > 0 {
			s.RetryIn = remaining
		}
	}
	return s
}
