// SPDX-License-Identifier: MIT

// Package cache memoizes embedding vectors keyed by model and text
// hash. Implementations are safe for concurrent use.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache stores embedding vectors with per-entry expiration.
type Cache interface {
	// Get retrieves a vector. The second result is false when the key
	// is absent or expired.
	Get(key string) ([]float32, bool)
	// Set stores a vector with the specified TTL.
	Set(key string, vec []float32, ttl time.Duration)
	// Delete removes a single entry.
	Delete(key string)
	// Clear removes all entries.
	Clear()
	// Stats returns cache counters.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry struct {
	key        string
	vec        []float32
	expiration time.Time
}

func (e *entry) isExpired() bool {
	return time.Now().After(e.expiration)
}

// memoryCache is a bounded in-memory LRU with TTL. Lookups refresh
// recency; inserts beyond maxEntries evict the least recently used
// entry. Recency bookkeeping mutates on Get, so a single mutex guards
// everything.
type memoryCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front is most recently used
	stats      Stats
	janitor    *janitor
}

// NewMemoryCache creates an in-memory cache holding at most maxEntries
// vectors (0 means unbounded). With a positive cleanupInterval a
// background janitor drops expired entries; call Close to stop it.
func NewMemoryCache(maxEntries int, cleanupInterval time.Duration) Cache {
	c := &memoryCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}

	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}

	return c
}

func (c *memoryCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.entries[key]
	if !found {
		c.stats.Misses++
		return nil, false
	}

	e := el.Value.(*entry)
	if e.isExpired() {
		c.removeElement(el)
		c.stats.Misses++
		return nil, false
	}

	c.order.MoveToFront(el)
	c.stats.Hits++
	return e.vec, true
}

func (c *memoryCache) Set(key string, vec []float32, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, found := c.entries[key]; found {
		e := el.Value.(*entry)
		e.vec = vec
		e.expiration = time.Now().Add(ttl)
		c.order.MoveToFront(el)
		c.stats.Sets++
		return
	}

	el := c.order.PushFront(&entry{key: key, vec: vec, expiration: time.Now().Add(ttl)})
	c.entries[key] = el
	c.stats.Sets++

	if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		if back := c.order.Back(); back != nil {
			c.removeElement(back)
			c.stats.Evictions++
		}
	}
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, found := c.entries[key]; found {
		c.removeElement(el)
	}
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *memoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

// removeElement must be called with the mutex held.
func (c *memoryCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*entry).key)
}

func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	var next *list.Element
	for el := c.order.Front(); el != nil; el = next {
		next = el.Next()
		if el.Value.(*entry).isExpired() {
			c.removeElement(el)
			count++
		}
	}

	c.stats.Evictions += int64(count)
	return count
}

// Close stops the background janitor.
func (c *memoryCache) Close() error {
	if c.janitor != nil {
		c.janitor.stop <- struct{}{}
	}
	return nil
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(c *memoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

// noOpCache never stores anything. Used when caching is disabled.
type noOpCache struct{}

// NewNoOpCache creates a cache that doesn't cache anything.
func NewNoOpCache() Cache {
	return &noOpCache{}
}

func (c *noOpCache) Get(key string) ([]float32, bool) { return nil, false }

func (c *noOpCache) Set(key string, vec []float32, ttl time.Duration) {}

func (c *noOpCache) Delete(key string) {}

func (c *noOpCache) Clear() {}

func (c *noOpCache) Stats() Stats { return Stats{} }
