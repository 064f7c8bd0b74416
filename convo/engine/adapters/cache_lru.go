package adapters

import (
	"container/list"
	"context"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

// LRUCache is an in-memory LRU cache with optional per-entry TTL.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front is most recently used
	items    map[string]*list.Element
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewLRUCache creates a cache bounded to capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the cached value and marks it recently used. Expired entries
// are removed on access.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*lruEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.removeLocked(elem)
		return nil, false
	}

	c.order.MoveToFront(elem)
	return entry.value, true
}

// Set stores a value, evicting the least recently used entry when full.
// ttlSeconds <= 0 stores without expiry.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttlSeconds > 0 {
		expiresAt = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	}

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return nil
	}

	c.items[key] = c.order.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
	if c.order.Len() > c.capacity {
		c.removeLocked(c.order.Back())
	}
	return nil
}

// Delete removes a key if present.
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
	return nil
}

// Len reports the current number of entries, expired ones included.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	delete(c.items, elem.Value.(*lruEntry).key)
	c.order.Remove(elem)
}

// Ensure LRUCache implements the Cache interface.
var _ ports.Cache = (*LRUCache)(nil)
