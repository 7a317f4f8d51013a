package buffer

import (
	"slices"
	"sync"

	"github.com/c360/streamsync/errors"
)

// Ordered is a bounded, thread-safe buffer. Items are stored in write order
// and handed out sorted by less; items that compare equal keep write order.
type Ordered[T any] struct {
	mu       sync.Mutex
	items    []T
	less     LessFunc[T]
	capacity int
	stats    *Statistics
	metrics  *bufferMetrics
	opts     *bufferOptions[T]
}

// NewOrdered creates an ordered buffer holding at most capacity items.
// A nil less keeps plain write order.
func NewOrdered[T any](capacity int, less LessFunc[T], options ...Option[T]) (*Ordered[T], error) {
	if capacity <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Ordered", "NewOrdered",
			"capacity must be positive")
	}

	opts := applyOptions(options...)

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "Ordered", "NewOrdered", "metrics registration")
		}
	}

	return &Ordered[T]{
		items:    make([]T, 0, min(capacity, 64)),
		less:     less,
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}, nil
}

// Write adds an item. On a full buffer DropNewest rejects the item with
// errors.ErrQueueFull and DropOldest evicts the earliest written item.
// The drop callback sees whichever item was lost.
func (b *Ordered[T]) Write(item T) error {
	b.mu.Lock()

	var (
		dropped    T
		hasDropped bool
	)

	if len(b.items) >= b.capacity {
		b.stats.Overflow()
		b.stats.Drop()
		if b.metrics != nil {
			b.metrics.drops.Inc()
		}

		if b.opts.overflowPolicy == DropNewest {
			b.mu.Unlock()
			b.notifyDrop(item)
			return errors.WrapTransient(errors.ErrQueueFull, "Ordered", "Write", "buffer at capacity")
		}

		dropped, hasDropped = b.items[0], true
		var zero T
		b.items[0] = zero
		b.items = b.items[1:]
	}

	b.items = append(b.items, item)
	b.stats.Write()
	b.stats.UpdateSize(int64(len(b.items)))
	if b.metrics != nil {
		b.metrics.writes.Inc()
		b.metrics.updateSize(len(b.items), b.capacity)
	}
	b.mu.Unlock()

	if hasDropped {
		b.notifyDrop(dropped)
	}
	return nil
}

func (b *Ordered[T]) notifyDrop(item T) {
	if b.opts.dropCallback != nil {
		b.opts.dropCallback(item)
	}
}

// DrainBatch removes and returns up to max items in order.
func (b *Ordered[T]) DrainBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return nil
	}

	b.sortLocked()

	n := min(max, len(b.items))
	out := make([]T, n)
	copy(out, b.items[:n])

	var zero T
	for i := 0; i < n; i++ {
		b.items[i] = zero
	}
	b.items = b.items[n:]

	b.updateSizeLocked()
	b.stats.Read(n)
	if b.metrics != nil {
		b.metrics.reads.Add(float64(n))
	}
	return out
}

// Drain removes and returns every item in order.
func (b *Ordered[T]) Drain() []T {
	return b.DrainBatch(b.capacity)
}

// Snapshot returns the items in order without removing them.
func (b *Ordered[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sortLocked()
	return slices.Clone(b.items)
}

// Purge removes every item for which remove returns true and reports how
// many were removed. Purged items are not counted as drops.
func (b *Ordered[T]) Purge(remove func(T) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	before := len(b.items)
	b.items = slices.DeleteFunc(b.items, remove)
	n := before - len(b.items)
	if n == 0 {
		return 0
	}

	b.updateSizeLocked()
	b.stats.Purge(n)
	if b.metrics != nil {
		b.metrics.purged.Add(float64(n))
	}
	return n
}

// Clear removes all items and returns how many were discarded.
func (b *Ordered[T]) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.items)
	clear(b.items)
	b.items = b.items[:0]
	b.updateSizeLocked()
	return n
}

// Len returns the current number of items.
func (b *Ordered[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Capacity returns the maximum number of items the buffer can hold.
func (b *Ordered[T]) Capacity() int {
	return b.capacity
}

// IsEmpty returns true if the buffer contains no items.
func (b *Ordered[T]) IsEmpty() bool {
	return b.Len() == 0
}

// IsFull returns true if the buffer is at capacity.
func (b *Ordered[T]) IsFull() bool {
	return b.Len() >= b.capacity
}

// Stats returns the buffer statistics.
func (b *Ordered[T]) Stats() *Statistics {
	return b.stats
}

func (b *Ordered[T]) sortLocked() {
	if b.less == nil || len(b.items) < 2 {
		return
	}
	slices.SortStableFunc(b.items, func(x, y T) int {
		switch {
		case b.less(x, y):
			return -1
		case b.less(y, x):
			return 1
		default:
			return 0
		}
	})
}

func (b *Ordered[T]) updateSizeLocked() {
	b.stats.UpdateSize(int64(len(b.items)))
	if b.metrics != nil {
		b.metrics.updateSize(len(b.items), b.capacity)
	}
}
