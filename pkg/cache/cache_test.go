package cache

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/metric"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestNew_Validation(t *testing.T) {
	_, err := New[int](0, time.Second)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = New[int](10, -time.Second)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestCache_SetGetDelete(t *testing.T) {
	c, err := New[string](10, 0)
	require.NoError(t, err)

	created, err := c.Set("a", "1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("a", "2")
	require.NoError(t, err)
	assert.False(t, created)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Zero(t, c.Len())

	_, err = c.Set("", "x")
	assert.True(t, errors.IsInvalid(err))

	stats := c.Stats().Summary()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, int64(1), stats.Deletes)
	assert.Equal(t, 0.5, stats.HitRatio)
}

func TestCache_EvictsOldestWriteWhenFull(t *testing.T) {
	var evicted []string
	c, err := New(2, 0, WithEvictionCallback(func(key string, _ int) {
		evicted = append(evicted, key)
	}))
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3) // rewrite makes "a" the newest
	c.Set("c", 4)

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"c", "a"}, c.Keys())
	assert.Equal(t, int64(2), c.Stats().MaxSize())
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	clock := newClock()
	var evicted []string
	c, err := New(10, time.Minute,
		WithClock[int](clock.now),
		WithEvictionCallback(func(key string, _ int) { evicted = append(evicted, key) }))
	require.NoError(t, err)

	c.Set("old", 1)
	clock.advance(30 * time.Second)
	c.Set("new", 2)

	clock.advance(30 * time.Second)
	_, ok := c.Get("old")
	assert.False(t, ok, "expires exactly at the ttl")
	_, ok = c.Get("new")
	assert.True(t, ok)
	assert.Equal(t, []string{"old"}, evicted)

	clock.advance(10 * time.Second)
	c.Set("new", 3) // restarts the ttl
	clock.advance(50 * time.Second)
	assert.Equal(t, 1, c.Len())
}

func TestCache_SetIfAbsent(t *testing.T) {
	clock := newClock()
	c, err := New(10, time.Minute, WithClock[struct{}](clock.now))
	require.NoError(t, err)

	added, err := c.SetIfAbsent("msg-1", struct{}{})
	require.NoError(t, err)
	assert.True(t, added)

	clock.advance(59 * time.Second)
	added, _ = c.SetIfAbsent("msg-1", struct{}{})
	assert.False(t, added, "duplicate inside the window")

	clock.advance(time.Second)
	added, _ = c.SetIfAbsent("msg-1", struct{}{})
	assert.True(t, added, "window measured from the first write")

	_, err = c.SetIfAbsent("", struct{}{})
	assert.Error(t, err)
}

func TestCache_Clear(t *testing.T) {
	c, err := New[int](4, 0)
	require.NoError(t, err)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().CurrentSize())
}

func TestCache_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, err := New(1, 0, WithMetrics[int](registry, "dedup"))
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("b")
	c.Get("a")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.size))

	_, err = New(1, 0, WithMetrics[int](registry, "dedup"))
	assert.Error(t, err, "same service name registers twice")
}
