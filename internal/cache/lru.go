package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a size-bounded cache whose entries also expire after a TTL
// of inactivity.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	now     func() time.Time
	onEvict func(key string, data T)
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

type LRUOption[T any] func(*LRUCache[T])

// WithEvictHook registers fn to run for every entry that leaves the cache,
// whether through capacity, expiry, replacement or Delete. fn runs after the
// cache lock is released.
func WithEvictHook[T any](fn func(key string, data T)) LRUOption[T] {
	return func(c *LRUCache[T]) { c.onEvict = fn }
}

func WithLRUClock[T any](now func() time.Time) LRUOption[T] {
	return func(c *LRUCache[T]) { c.now = now }
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration, opts ...LRUOption[T]) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value and refreshes its TTL.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	now := c.now()
	if now.After(item.expiresAt) {
		c.removeElement(elem)
		c.mu.Unlock()
		c.evicted(item)
		return zero, false
	}

	item.expiresAt = now.Add(c.ttl)
	c.lru.MoveToFront(elem)
	c.mu.Unlock()
	return item.data, true
}

// Set stores a value in the cache
func (c *LRUCache[T]) Set(key string, data T) {
	var gone []*cacheItem[T]

	c.mu.Lock()
	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		gone = append(gone, elem.Value.(*cacheItem[T]))
		elem.Value = item
		c.lru.MoveToFront(elem)
	} else {
		c.items[key] = c.lru.PushFront(item)
		for c.lru.Len() > c.maxSize {
			oldest := c.lru.Back()
			gone = append(gone, oldest.Value.(*cacheItem[T]))
			c.removeElement(oldest)
		}
	}
	c.mu.Unlock()

	for _, it := range gone {
		c.evicted(it)
	}
}

// Delete removes a key from the cache
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return
	}
	item := elem.Value.(*cacheItem[T])
	c.removeElement(elem)
	c.mu.Unlock()
	c.evicted(item)
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

func (c *LRUCache[T]) evicted(item *cacheItem[T]) {
	if c.onEvict != nil {
		c.onEvict(item.key, item.data)
	}
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	now := c.now()
	var gone []*cacheItem[T]
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		item := elem.Value.(*cacheItem[T])
		if now.After(item.expiresAt) {
			gone = append(gone, item)
			c.removeElement(elem)
		}
		elem = next
	}
	c.mu.Unlock()

	for _, it := range gone {
		c.evicted(it)
	}
	return len(gone)
}

// Purge empties the cache, running the evict hook for every entry.
func (c *LRUCache[T]) Purge() {
	c.mu.Lock()
	var gone []*cacheItem[T]
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		gone = append(gone, elem.Value.(*cacheItem[T]))
	}
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.mu.Unlock()

	for _, it := range gone {
		c.evicted(it)
	}
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
