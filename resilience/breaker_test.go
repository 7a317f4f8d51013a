package resilience

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_Transitions(t *testing.T) {
	const (
		threshold = 2
		cooldown  = 10 * time.Second
	)
	start := time.Unix(100, 0)
	fail := fmt.Errorf("boom")
	b := &breaker{}

	_, ok := b.allow(start, cooldown)
	require.True(t, ok)
	assert.Equal(t, BreakerClosed, b.record(outcomeFailure, fail, start, threshold))
	assert.Equal(t, BreakerClosed, b.state, "below threshold")

	b.allow(start, cooldown)
	b.record(outcomeFailure, fail, start, threshold)
	require.Equal(t, BreakerOpen, b.state)
	assert.Equal(t, start, b.openedAt)

	retryIn, ok := b.allow(start.Add(4*time.Second), cooldown)
	assert.False(t, ok)
	assert.Equal(t, 6*time.Second, retryIn)

	_, ok = b.allow(start.Add(cooldown), cooldown)
	require.True(t, ok, "cooldown elapsed admits a trial")
	assert.Equal(t, BreakerHalfOpen, b.state)

	_, ok = b.allow(start.Add(cooldown), cooldown)
	assert.False(t, ok, "only one trial while half-open")

	prev := b.record(outcomeSuccess, nil, start.Add(cooldown), threshold)
	assert.Equal(t, BreakerHalfOpen, prev)
	assert.Equal(t, BreakerClosed, b.state)
	assert.Zero(t, b.failures)
}

func TestBreaker_NeutralOutcomeReleasesTrial(t *testing.T) {
	now := time.Unix(100, 0)
	b := &breaker{state: BreakerOpen, openedAt: now.Add(-time.Hour)}

	_, ok := b.allow(now, time.Minute)
	require.True(t, ok)

	b.record(outcomeNeutral, nil, now, 1)
	assert.Equal(t, BreakerHalfOpen, b.state)

	_, ok = b.allow(now, time.Minute)
	assert.True(t, ok, "a neutral trial frees the slot for the next call")
}

func TestBreaker_Status(t *testing.T) {
	now := time.Unix(100, 0)
	b := &breaker{}
	b.record(outcomeFailure, fmt.Errorf("refused"), now, 1)

	s := b.status(now.Add(15*time.Second), time.Minute)
	assert.Equal(t, BreakerOpen, s.State)
	assert.Equal(t, 1, s.Failures)
	assert.Equal(t, "refused", s.LastError)
	assert.Equal(t, now, s.OpenedAt)
	assert.Equal(t, 45*time.Second, s.RetryIn)

	s = b.status(now.Add(2*time.Minute), time.Minute)
	assert.Zero(t, s.RetryIn, "cooldown over")
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half_open", BreakerHalfOpen.String())
	assert.Equal(t, "BreakerState(9)", BreakerState(9).String())

	text, err := BreakerOpen.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "open", string(text))
}
