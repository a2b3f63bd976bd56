package capi

import (
	"context"
	"sync"
	"time"
)

// Cache lookup results reported to metrics.
const (
	cacheResultHit     = "hit"
	cacheResultMiss    = "miss"
	cacheResultRefresh = "refresh"
)

// CacheEntry is a cached value and the instant it stops being served.
type CacheEntry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// IsExpired reports whether the entry is stale at now.
func (e *CacheEntry[V]) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CacheStats counts cache activity.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Refreshes int64
}

// GetHitRate returns hits over all lookups, or 0 without lookups.
func (s CacheStats) GetHitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// Supplier computes a fresh value for a cache key.
type Supplier[K comparable, V any] func(ctx context.Context, key K) (V, error)

// TTLCache is a keyed cache whose entries expire a fixed time after they were
// stored. Supplier failures are returned to the caller and never cached.
// The supplier runs outside the lock, so concurrent misses on one key may
// compute the value more than once; the last store wins.
type TTLCache[K comparable, V any] struct {
	ttl     time.Duration
	now     func() time.Time
	metrics *Metrics

	mu      sync.Mutex
	entries map[K]*CacheEntry[V]
	stats   CacheStats
}

// CacheOption configures a TTLCache.
type CacheOption[K comparable, V any] func(*TTLCache[K, V])

// WithClock replaces time.Now, for tests.
func WithClock[K comparable, V any](now func() time.Time) CacheOption[K, V] {
	return func(c *TTLCache[K, V]) {
		c.now = now
	}
}

// WithCacheMetrics reports lookups to metrics.
func WithCacheMetrics[K comparable, V any](metrics *Metrics) CacheOption[K, V] {
	return func(c *TTLCache[K, V]) {
		c.metrics = metrics
	}
}

// NewTTLCache creates a cache whose entries live for ttl.
func NewTTLCache[K comparable, V any](ttl time.Duration, opts ...CacheOption[K, V]) *TTLCache[K, V] {
	cache := &TTLCache[K, V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[K]*CacheEntry[V]),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// Get returns the cached value for key, computing it with supplier when the
// key is absent or expired.
func (c *TTLCache[K, V]) Get(ctx context.Context, key K, supplier Supplier[K, V]) (V, error) {
	c.mu.Lock()

	entry, ok := c.entries[key]
	if ok && !entry.IsExpired(c.now()) {
		c.stats.Hits++
		value := entry.Value
		c.mu.Unlock()

		c.metrics.ObserveCacheLookup(cacheResultHit)

		return value, nil
	}

	c.stats.Misses++
	c.mu.Unlock()

	c.metrics.ObserveCacheLookup(cacheResultMiss)

	return c.load(ctx, key, supplier)
}

// ForceRefresh recomputes the value for key regardless of its age.
func (c *TTLCache[K, V]) ForceRefresh(ctx context.Context, key K, supplier Supplier[K, V]) (V, error) {
	c.mu.Lock()
	c.stats.Refreshes++
	c.mu.Unlock()

	c.metrics.ObserveCacheLookup(cacheResultRefresh)

	return c.load(ctx, key, supplier)
}

// Invalidate drops key.
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Len returns the number of stored entries, expired ones included.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *TTLCache[K, V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stats
}

func (c *TTLCache[K, V]) load(ctx context.Context, key K, supplier Supplier[K, V]) (V, error) {
	value, err := supplier(ctx, key)
	if err != nil {
		var zero V

		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &CacheEntry[V]{
		Value:     value,
		ExpiresAt: c.now().Add(c.ttl),
	}

	return value, nil
}
