// Package cache provides an in-memory LRU cache with TTL for the read-only
// catalog endpoints.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Entry is a cached response body with the headers needed to replay it.
type Entry struct {
	Body        []byte
	ContentType string
	ETag        string
}

type item struct {
	key       string
	entry     Entry
	expiresAt time.Time
}

// LRUCache is a thread-safe cache with TTL and least-recently-used eviction.
// Expired entries are dropped lazily on Get.
type LRUCache struct {
	mu      sync.Mutex
	order   *list.List
	items   map[string]*list.Element
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewLRUCache creates a cache holding at most maxSize entries for ttl each.
// maxSize is at least 1; a non-positive ttl defaults to one minute.
func NewLRUCache(maxSize int, ttl time.Duration) *LRUCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LRUCache{
		order:   list.New(),
		items:   make(map[string]*list.Element, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the entry for key and marks it recently used.
func (c *LRUCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	it := el.Value.(*item)
	if c.now().After(it.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return Entry{}, false
	}
	c.order.MoveToFront(el)
	return it.entry, true
}

// Set stores e under key, evicting the least recently used entry when full.
func (c *LRUCache) Set(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		el.Value = &item{key: key, entry: e, expiresAt: expires}
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*item).key)
		}
	}
	c.items[key] = c.order.PushFront(&item{key: key, entry: e, expiresAt: expires})
}

// Invalidate removes key.
func (c *LRUCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// InvalidateAll empties the cache.
func (c *LRUCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
}

// Size returns the number of entries, including expired ones not yet
// dropped.
func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
