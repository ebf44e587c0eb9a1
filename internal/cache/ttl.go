// Package cache provides small in-memory TTL caches for hot-path lookups.
package cache

import (
	"sync"
	"time"
)

// Cache is a TTL-bounded key/value store.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
}

type entry[V any] struct {
	expiresAt time.Time
	value     V
}

type ttlCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
}

// NewTTLCache returns an empty TTL cache.
func NewTTLCache[K comparable, V any]() Cache[K, V] {
	return &ttlCache[K, V]{items: make(map[K]entry[V])}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	var zero V
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if time.Now().UTC().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return zero, false
	}
	return item.value, true
}

func (c *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.items[key] = entry[V]{
		expiresAt: time.Now().UTC().Add(ttl),
		value:     value,
	}
	c.mu.Unlock()
}

func (c *ttlCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}
