// Package cache provides the master's in-memory read-through caches: a
// size- and time-bounded LRU cache (ScopedCache) and a Registry of named
// scopes with the write-invalidation rules that keep them consistent with
// directory writes.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// ScopedCache is one independent cache namespace. Eviction is
// least-recently-used once capacity is exceeded; independently of that,
// entries older than the TTL are treated as misses on read (lazy expiry,
// no background sweep). Safe for concurrent use.
type ScopedCache struct {
	mu       sync.Mutex
	name     string
	capacity int
	ttl      time.Duration // 0 means entries never expire
	items    map[string]*list.Element
	order    *list.List // front = most recent

	hits   atomic.Int64
	misses atomic.Int64

	now func() time.Time // test seam
}

type entry struct {
	key        string
	value      any
	insertedAt time.Time
}

// NewScoped creates a cache holding at most capacity entries, each valid
// for ttl after insertion. A ttl of 0 disables time-based expiry.
func NewScoped(name string, capacity int, ttl time.Duration) *ScopedCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &ScopedCache{
		name:     name,
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached value for key. An entry past its TTL is removed
// and reported as a miss.
func (c *ScopedCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	ent := elem.Value.(*entry)
	if c.ttl > 0 && c.now().Sub(ent.insertedAt) > c.ttl {
		c.remove(elem)
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits.Add(1)
	return ent.value, true
}

// Set inserts or replaces the value for key, restarting its TTL.
func (c *ScopedCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		ent := elem.Value.(*entry)
		ent.value = value
		ent.insertedAt = c.now()
		return
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
	c.items[key] = c.order.PushFront(&entry{
		key:        key,
		value:      value,
		insertedAt: c.now(),
	})
}

// Del removes the entry for key, if present.
func (c *ScopedCache) Del(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
}

// Reset empties this scope. Other scopes are unaffected.
func (c *ScopedCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// Len returns the number of entries, expired or not.
func (c *ScopedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Dump is a diagnostic snapshot of one scope.
type Dump struct {
	Name     string   `json:"name"`
	Capacity int      `json:"capacity"`
	TTLMs    int64    `json:"ttl_ms"`
	Len      int      `json:"len"`
	Hits     int64    `json:"hits"`
	Misses   int64    `json:"misses"`
	Keys     []string `json:"keys"`
}

// Dump returns a point-in-time snapshot for the admin state endpoint.
func (c *ScopedCache) Dump() Dump {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry).key)
	}
	return Dump{
		Name:     c.name,
		Capacity: c.capacity,
		TTLMs:    c.ttl.Milliseconds(),
		Len:      len(keys),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Keys:     keys,
	}
}

// remove drops an element from both the list and the index. Caller must
// hold the lock.
func (c *ScopedCache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}
