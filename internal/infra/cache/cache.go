// Package cache provides a simple in-memory TTL cache.
// It holds open drafts and therapist rates; both are per-instance state.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// InMemory is a thread-safe in-memory cache with TTL.
type InMemory[T any] struct {
	mu      sync.RWMutex
	items   map[string]entry[T]
	ttl     time.Duration
	sliding bool
	onEvict func(key string, value T)
	stop    chan struct{}
	once    sync.Once
}

// New creates a new in-memory cache with the given TTL.
func New[T any](ttl time.Duration) *InMemory[T] {
	c := &InMemory[T]{
		items: make(map[string]entry[T]),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	// Background cleanup goroutine
	go c.cleanup()
	return c
}

// NewSliding creates a cache whose entries expire ttl after their last read
// or write, rather than after the write only.
func NewSliding[T any](ttl time.Duration) *InMemory[T] {
	c := New[T](ttl)
	c.sliding = true
	return c
}

// OnEvict registers fn to run for every expired entry the cache drops. It
// runs outside the lock.
func (c *InMemory[T]) OnEvict(fn func(key string, value T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get retrieves a value from the cache. Returns false if not found or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	if c.sliding {
		return c.getAndTouch(key)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *InMemory[T]) getAndTouch(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	e, ok := c.items[key]
	if !ok || now.After(e.expiresAt) {
		var zero T
		return zero, false
	}
	e.expiresAt = now.Add(c.ttl)
	c.items[key] = e
	return e.value, true
}

// Set stores a value in the cache with the configured TTL. An expired value
// it replaces counts as evicted.
func (c *InMemory[T]) Set(key string, value T) {
	c.mu.Lock()
	now := time.Now()
	old, had := c.items[key]
	c.items[key] = entry[T]{
		value:     value,
		expiresAt: now.Add(c.ttl),
	}
	onEvict := c.onEvict
	c.mu.Unlock()

	if had && onEvict != nil && now.After(old.expiresAt) {
		onEvict(key, old.value)
	}
}

// Delete removes a value from the cache.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Len returns the number of live entries.
func (c *InMemory[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	n := 0
	for _, e := range c.items {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n
}

// Close stops the cleanup goroutine. The cache stays readable.
func (c *InMemory[T]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanup periodically removes expired entries.
func (c *InMemory[T]) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		c.sweep(time.Now())
	}
}

func (c *InMemory[T]) sweep(now time.Time) {
	c.mu.Lock()
	var evicted []kv[T]
	for k, v := range c.items {
		if now.After(v.expiresAt) {
			delete(c.items, k)
			if c.onEvict != nil {
				evicted = append(evicted, kv[T]{k, v.value})
			}
		}
	}
	onEvict := c.onEvict
	c.mu.Unlock()

	for _, e := range evicted {
		onEvict(e.key, e.value)
	}
}

type kv[T any] struct {
	key   string
	value T
}
