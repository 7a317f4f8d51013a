// Package cache provides a bounded, thread-safe cache whose entries expire a
// fixed time after they were last written.
//
// Entries are kept in write order, so the oldest write is evicted first when
// the cache is full and expired entries are always found at the tail. There
// is no background goroutine: expiry is applied lazily on every operation.
//
//	seen, _ := cache.New[struct{}](4096, time.Minute)
//	if added, _ := seen.SetIfAbsent(msgID, struct{}{}); !added {
//		// duplicate within the last minute
//	}
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/c360/streamsync/errors"
)

// EvictCallback is called when an entry leaves the cache because it expired
// or the cache was full. It runs with the cache lock held and must not call
// back into the cache.
type EvictCallback[V any] func(key string, value V)

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time // zero means never
}

// Cache is a size-bounded cache with an optional per-entry TTL.
type Cache[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	items   map[string]*list.Element
	order   *list.List // front is the newest write
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
}

// New creates a cache holding at most maxSize entries. A ttl of zero keeps
// entries until they are evicted for space.
func New[V any](maxSize int, ttl time.Duration, options ...Option[V]) (*Cache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: max size must be positive, got %d", errors.ErrInvalidConfig, maxSize),
			"cache", "New", "validate size")
	}
	if ttl < 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: ttl must not be negative, got %v", errors.ErrInvalidConfig, ttl),
			"cache", "New", "validate ttl")
	}

	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "New", "metrics registration")
		}
	}

	return &Cache[V]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     opts.now,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   NewStatistics(),
		metrics: metrics,
		evictFn: opts.evictCallback,
	}, nil
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	el, ok := c.items[key]
	if !ok {
		c.miss()
		var zero V
		return zero, false
	}
	c.hit()
	return el.Value.(*entry[V]).value, true
}

// Set stores value under key and restarts its TTL. It reports whether a new
// entry was created.
func (c *Cache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.expiresAt = c.expiry()
		c.order.MoveToFront(el)
		c.stats.Set()
		return false, nil
	}
	c.insertLocked(key, value)
	return true, nil
}

// SetIfAbsent stores value only when key is missing or expired. It reports
// whether the value was stored; an existing entry is left untouched and
// counts as a hit.
func (c *Cache[V]) SetIfAbsent(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	if _, ok := c.items[key]; ok {
		c.hit()
		return false, nil
	}
	c.miss()
	c.insertLocked(key, value)
	return true, nil
}

// Delete removes key. It reports whether the key was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	c.stats.Delete()
	c.sizeChangedLocked()
	return true
}

// Clear removes every entry without calling the eviction callback.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.sizeChangedLocked()
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	return len(c.items)
}

// Keys returns the live keys, newest write first.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	keys := make([]string, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[V]).key)
	}
	return keys
}

// Stats returns the cache statistics.
func (c *Cache[V]) Stats() *Statistics {
	return c.stats
}

func (c *Cache[V]) expiry() time.Time {
	if c.ttl == 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}

func (c *Cache[V]) insertLocked(key string, value V) {
	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, expiresAt: c.expiry()})
	c.stats.Set()
	for len(c.items) > c.maxSize {
		c.evictLocked(c.order.Back())
	}
	c.sizeChangedLocked()
}

// expireLocked drops expired entries from the tail.
func (c *Cache[V]) expireLocked() {
	if c.ttl == 0 {
		return
	}
	now := c.now()
	removed := false
	for el := c.order.Back(); el != nil; el = c.order.Back() {
		if now.Before(el.Value.(*entry[V]).expiresAt) {
			break
		}
		c.evictLocked(el)
		removed = true
	}
	if removed {
		c.sizeChangedLocked()
	}
}

func (c *Cache[V]) evictLocked(el *list.Element) {
	e := c.removeLocked(el)
	c.stats.Eviction()
	if c.metrics != nil {
		c.metrics.evictions.Inc()
	}
	if c.evictFn != nil {
		c.evictFn(e.key, e.value)
	}
}

func (c *Cache[V]) removeLocked(el *list.Element) *entry[V] {
	e := c.order.Remove(el).(*entry[V])
	delete(c.items, e.key)
	return e
}

func (c *Cache[V]) hit() {
	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.hits.Inc()
	}
}

func (c *Cache[V]) miss() {
	c.stats.Miss()
	if c.metrics != nil {
		c.metrics.misses.Inc()
	}
}

func (c *Cache[V]) sizeChangedLocked() {
	c.stats.UpdateSize(int64(len(c.items)))
	if c.metrics != nil {
		c.metrics.size.Set(float64(len(c.items)))
	}
}

// validateKey validates a cache key for basic requirements.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
