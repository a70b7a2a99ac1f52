// Package cache provides the in-memory TTL caches backing metadata,
// liveness, mint-authority, price and rug-report lookups. Hit/miss is
// decided by key presence, never by value truthiness, so false, 0 and ""
// are all cacheable values.
package cache

import (
	"sync"
	"time"
)

// SweepInterval is how often expired entries are evicted in the background.
const SweepInterval = 60 * time.Second

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a concurrent string-keyed TTL map. One instance per cache
// category, each with its own TTL.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	ttl     time.Duration
	stop    chan struct{}
	done    chan struct{}

	now func() time.Time // swapped out in tests
}

// New creates a cache whose entries live for ttl and starts the background
// sweeper. Call Stop when the cache is no longer needed.
func New[V any](ttl time.Duration) *Cache[V] {
	c := &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go c.sweepLoop()
	return c
}

// Get returns the cached value for key. An entry is a hit up to and
// including its expiry instant; one tick later it is evicted and misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, overwriting any previous entry and resetting
// its expiry.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries, expired ones included until the next
// sweep touches them.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush drops every entry. Used on admin cache flush and as a test reset.
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Stop terminates the background sweeper. Safe to call once.
func (c *Cache[V]) Stop() {
	close(c.stop)
	<-c.done
}

func (c *Cache[V]) sweepLoop() {
	defer close(c.done)
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
