// Package cache provides a small thread-safe LRU with per-entry TTL, used to
// memoize link previews and embeddings across turns.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// LRU is a thread-safe least-recently-used cache with TTL expiry.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List
}

type slot[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// NewLRU creates a cache holding at most capacity entries, each living for
// ttl. A non-positive ttl means entries never expire.
func NewLRU[V any](capacity int, ttl time.Duration) *LRU[V] {
	if capacity <= 0 {
		capacity = 128
	}
	return &LRU[V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get retrieves a live value, refreshing its recency.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	s := elem.Value.(*slot[V])
	if !s.expiresAt.IsZero() && time.Now().After(s.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return s.value, true
}

// Set stores a value, evicting the oldest entry when over capacity.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		s := elem.Value.(*slot[V])
		s.value = value
		s.expiresAt = expiresAt
		return
	}

	elem := c.order.PushFront(&slot[V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*slot[V]).key)
		}
	}
}

// Clear drops every entry.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// Len reports how many entries are held, expired ones included.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// HashKey derives a stable cache key from arbitrary text.
func HashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
