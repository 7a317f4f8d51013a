package buffer

import (
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/metric"
)

type entry struct {
	rank int
	at   time.Time
	name string
}

func byRankThenTime(a, b entry) bool {
	if a.rank != b.rank {
		return a.rank > b.rank
	}
	return a.at.Before(b.at)
}

func names(entries []entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

func TestNewOrdered_RejectsNonPositiveCapacity(t *testing.T) {
	_, err := NewOrdered[int](0, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestOrdered_DrainSortsStable(t *testing.T) {
	buf, err := NewOrdered[entry](10, byRankThenTime)
	require.NoError(t, err)

	base := time.Now()
	require.NoError(t, buf.Write(entry{rank: 1, at: base, name: "low-1"}))
	require.NoError(t, buf.Write(entry{rank: 3, at: base.Add(2 * time.Millisecond), name: "high-2"}))
	require.NoError(t, buf.Write(entry{rank: 3, at: base.Add(time.Millisecond), name: "high-1"}))
	require.NoError(t, buf.Write(entry{rank: 2, at: base, name: "mid-a"}))
	require.NoError(t, buf.Write(entry{rank: 2, at: base, name: "mid-b"}))

	assert.Equal(t, []string{"high-1", "high-2", "mid-a", "mid-b", "low-1"}, names(buf.Drain()))
	assert.True(t, buf.IsEmpty())
}

func TestOrdered_DrainBatchChunks(t *testing.T) {
	buf, err := NewOrdered[int](100, func(a, b int) bool { return a < b })
	require.NoError(t, err)

	for _, v := range []int{9, 3, 7, 1, 5, 2, 8} {
		require.NoError(t, buf.Write(v))
	}

	assert.Equal(t, []int{1, 2, 3}, buf.DrainBatch(3))
	require.NoError(t, buf.Write(0))
	assert.Equal(t, []int{0, 5, 7}, buf.DrainBatch(3))
	assert.Equal(t, []int{8, 9}, buf.DrainBatch(3))
	assert.Nil(t, buf.DrainBatch(3))
	assert.Nil(t, buf.DrainBatch(0))

	assert.Equal(t, int64(8), buf.Stats().Reads())
}

func TestOrdered_NilLessKeepsWriteOrder(t *testing.T) {
	buf, err := NewOrdered[string](5, nil)
	require.NoError(t, err)

	for _, s := range []string{"c", "a", "b"} {
		require.NoError(t, buf.Write(s))
	}
	assert.Equal(t, []string{"c", "a", "b"}, buf.Snapshot())
	assert.Equal(t, 3, buf.Len(), "snapshot must not remove items")
}

func TestOrdered_DropNewestRejects(t *testing.T) {
	var dropped []int
	buf, err := NewOrdered[int](2, nil, WithDropCallback[int](func(v int) {
		dropped = append(dropped, v)
	}))
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	assert.True(t, buf.IsFull())

	err = buf.Write(3)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrQueueFull))

	assert.Equal(t, []int{3}, dropped)
	assert.Equal(t, []int{1, 2}, buf.Snapshot())
	assert.Equal(t, int64(1), buf.Stats().Drops())
	assert.Equal(t, int64(1), buf.Stats().Overflows())
}

func TestOrdered_DropOldestEvicts(t *testing.T) {
	var dropped []int
	buf, err := NewOrdered[int](2, nil,
		WithOverflowPolicy[int](DropOldest),
		WithDropCallback[int](func(v int) { dropped = append(dropped, v) }),
	)
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	require.NoError(t, buf.Write(3))

	assert.Equal(t, []int{1}, dropped)
	assert.Equal(t, []int{2, 3}, buf.Snapshot())
}

func TestOrdered_Purge(t *testing.T) {
	buf, err := NewOrdered[int](10, nil)
	require.NoError(t, err)

	for i := 1; i <= 6; i++ {
		require.NoError(t, buf.Write(i))
	}

	removed := buf.Purge(func(v int) bool { return v%2 == 0 })
	assert.Equal(t, 3, removed)
	assert.Equal(t, []int{1, 3, 5}, buf.Snapshot())
	assert.Equal(t, 0, buf.Purge(func(v int) bool { return v > 100 }))

	assert.Equal(t, int64(3), buf.Stats().Purged())
	assert.Equal(t, int64(0), buf.Stats().Drops(), "purge is not a drop")
}

func TestOrdered_Clear(t *testing.T) {
	buf, err := NewOrdered[int](10, nil)
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))

	assert.Equal(t, 2, buf.Clear())
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, int64(0), buf.Stats().CurrentSize())
	assert.Equal(t, int64(2), buf.Stats().MaxSize())
}

func TestOrdered_ConcurrentWriters(t *testing.T) {
	buf, err := NewOrdered[int](1000, func(a, b int) bool { return a < b })
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = buf.Write(w*50 + i)
			}
		}(w)
	}
	wg.Wait()

	all := buf.Drain()
	require.Len(t, all, 500)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1], all[i])
	}
}

func TestOrdered_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	buf, err := NewOrdered[int](2, nil, WithMetrics[int](registry, "test_queue"))
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	_ = buf.Write(3)
	buf.DrainBatch(1)
	buf.Purge(func(int) bool { return true })

	assert.Equal(t, 2.0, testutil.ToFloat64(buf.metrics.writes))
	assert.Equal(t, 1.0, testutil.ToFloat64(buf.metrics.reads))
	assert.Equal(t, 1.0, testutil.ToFloat64(buf.metrics.drops))
	assert.Equal(t, 1.0, testutil.ToFloat64(buf.metrics.purged))
	assert.Equal(t, 0.0, testutil.ToFloat64(buf.metrics.size))

	// Same prefix twice collides in the registry
	_, err = NewOrdered[int](2, nil, WithMetrics[int](registry, "test_queue"))
	assert.Error(t, err)
}

func TestOverflowPolicy_String(t *testing.T) {
	assert.Equal(t, "DropNewest", DropNewest.String())
	assert.Equal(t, "DropOldest", DropOldest.String())
	assert.Equal(t, "Unknown", OverflowPolicy(99).String())
}

func TestStatistics_Summary(t *testing.T) {
	stats := NewStatistics()
	for i := 0; i < 4; i++ {
		stats.Write()
	}
	stats.Drop()
	stats.Read(2)
	stats.UpdateSize(2)

	summary := stats.Summary()
	assert.Equal(t, int64(4), summary.Writes)
	assert.Equal(t, int64(2), summary.Reads)
	assert.Equal(t, 0.25, summary.DropRate)
	assert.Equal(t, int64(2), summary.MaxSize)

	stats.Reset()
	summary = stats.Summary()
	assert.Zero(t, summary.Writes)
	assert.Zero(t, summary.Drops)
	assert.Zero(t, summary.MaxSize)
}

func BenchmarkOrdered_WriteDrain(b *testing.B) {
	buf, err := NewOrdered[string](b.N+1, func(a, c string) bool { return a < c })
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < b.N; i++ {
		_ = buf.Write(fmt.Sprintf("item-%08d", b.N-i))
	}
	for !buf.IsEmpty() {
		buf.DrainBatch(100)
	}
}
