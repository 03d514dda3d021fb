// Package cache is a small time-bounded memo shared by read-mostly
// lookups.
package cache

import (
	"sync"
	"time"

	"github.com/verte-zerg/neotype/internal/clock"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Cache maps keys to values that stay visible for ttl after insertion.
// Expiry is checked lazily on read. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[K]entry[V]
}

// New returns an empty cache.
func New[K comparable, V any](ttl time.Duration, clk clock.Clock) *Cache[K, V] {
	if clk == nil {
		clk = clock.Real()
	}
	return &Cache[K, V]{ttl: ttl, clock: clk, entries: map[K]entry[V]{}}
}

// Get returns the value for key while it is fresh. A stale entry is
// evicted.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.clock.Now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, restarting its lifetime.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, insertedAt: c.clock.Now()}
}

// Delete drops key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[K]entry[V]{}
}

// Len returns the number of stored entries, stale ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
