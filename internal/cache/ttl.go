// Package cache provides the TTL caches used by the retrieval core:
// embedding, vector-result, SERP and detail caches are all instances of
// the same generic cache with independent enable flags, TTLs and bounds.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Default cache bounds.
const (
	// DefaultMaxEntries is the default entry bound when none is configured.
	DefaultMaxEntries = 1000
)

// Config configures one cache instance.
type Config struct {
	// Enabled toggles the cache. A disabled cache always misses on Get
	// and turns Put into a no-op.
	Enabled bool

	// TTL is the time-to-live for entries. Expiry is checked lazily on read.
	TTL time.Duration

	// MaxEntries bounds the cache size. On write pressure, expired entries
	// are evicted first, then entries in insertion order.
	MaxEntries int
}

// Entry is a cached value with its creation and expiry timestamps.
type Entry[V any] struct {
	Value     V
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Age returns how long the entry has been cached as of now.
func (e Entry[V]) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// RemainingTTL returns how long the entry stays fresh as of now.
// Zero or negative means expired.
func (e Entry[V]) RemainingTTL(now time.Time) time.Duration {
	return e.ExpiresAt.Sub(now)
}

// TTLCache is a concurrency-safe TTL cache with lazy expiry and
// bounded-size eviction.
type TTLCache[V any] struct {
	mu      sync.Mutex
	cfg     Config
	entries *lru.Cache[string, Entry[V]]
	clock   func() time.Time

	hits   uint64
	misses uint64
}

// Option configures a TTLCache.
type Option[V any] func(*TTLCache[V])

// WithClock overrides the cache clock. Used by tests to control expiry.
func WithClock[V any](clock func() time.Time) Option[V] {
	return func(c *TTLCache[V]) {
		c.clock = clock
	}
}

// New creates a cache with the given configuration.
func New[V any](cfg Config, opts ...Option[V]) *TTLCache[V] {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	entries, _ := lru.New[string, Entry[V]](cfg.MaxEntries)
	c := &TTLCache[V]{
		cfg:     cfg,
		entries: entries,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether the cache is active.
func (c *TTLCache[V]) Enabled() bool {
	return c.cfg.Enabled
}

// Get returns the cached value for key if present and fresh.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	entry, ok := c.GetEntry(key)
	return entry.Value, ok
}

// GetEntry returns the full cache entry for key, including its timestamps.
// The orchestrator uses the timestamps to emit cache-freshness metadata.
func (c *TTLCache[V]) GetEntry(key string) (Entry[V], bool) {
	var zero Entry[V]
	if !c.cfg.Enabled {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}
	if !c.clock().Before(entry.ExpiresAt) {
		c.entries.Remove(key)
		c.misses++
		return zero, false
	}
	c.hits++
	return entry, true
}

// Put stores a value under key with the configured TTL.
// No-op when the cache is disabled.
func (c *TTLCache[V]) Put(key string, value V) {
	if !c.cfg.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.entries.Len() >= c.cfg.MaxEntries {
		c.evictExpired(now)
	}
	// The LRU layer drops the oldest entry if we are still at capacity.
	c.entries.Add(key, Entry[V]{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(c.cfg.TTL),
	})
}

// evictExpired removes stale entries. Caller must hold the lock.
func (c *TTLCache[V]) evictExpired(now time.Time) {
	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if ok && !now.Before(entry.ExpiresAt) {
			c.entries.Remove(key)
		}
	}
}

// Len returns the current number of entries, including not-yet-collected
// expired ones.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Purge drops all entries.
func (c *TTLCache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Stats returns cumulative hit and miss counts.
func (c *TTLCache[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
