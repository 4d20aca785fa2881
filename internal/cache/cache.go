// Package cache is a small size-bounded TTL cache used in front of the
// user store (language preferences) and for callback de-duplication.
package cache

import (
	"sync"
	"time"
)

const (
	DefaultMaxSize         = 1000
	DefaultExpiry          = 5 * time.Minute
	DefaultCleanupInterval = time.Minute
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]*entry[V]
	maxSize int
	expiry  time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func New[V any]() *Cache[V] {
	return NewWithConfig[V](DefaultMaxSize, DefaultExpiry, DefaultCleanupInterval)
}

// NewWithConfig starts a janitor goroutine when cleanupInterval > 0. Call Close to stop it.
func NewWithConfig[V any](maxSize int, expiry, cleanupInterval time.Duration) *Cache[V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache[V]{
		items:   make(map[string]*entry[V]),
		maxSize: maxSize,
		expiry:  expiry,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *Cache[V]) Set(key string, value V) {
	c.SetWithExpiry(key, value, c.expiry)
}

func (c *Cache[V]) SetWithExpiry(key string, value V, expiry time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evict()
	}
	c.items[key] = &entry[V]{value: value, expiresAt: c.now().Add(expiry)}
}

// SetIfAbsent stores value only when key is missing or expired and reports
// whether it did.
func (c *Cache[V]) SetIfAbsent(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, exists := c.items[key]; exists && !e.expired(now) {
		return false
	}
	if len(c.items) >= c.maxSize {
		c.evict()
	}
	c.items[key] = &entry[V]{value: value, expiresAt: now.Add(c.expiry)}
	return true
}

func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.RLock()
	e, exists := c.items[key]
	c.mu.RUnlock()
	if !exists {
		return zero, false
	}

	if e.expired(c.now()) {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && cur == e {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[V]) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.items {
		if e.expired(now) {
			delete(c.items, key)
		}
	}
}

// evict drops expired entries first, then the entry closest to expiry.
// Caller holds the write lock.
func (c *Cache[V]) evict() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	for key, e := range c.items {
		if e.expired(now) {
			delete(c.items, key)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = key, e.expiresAt
		}
	}
	if len(c.items) >= c.maxSize && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
