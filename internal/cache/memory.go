package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache is an in-process LRU cache with per-entry TTL.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	maxEntries int
	ttl        time.Duration

	stopCleanup chan struct{}
	closeOnce   sync.Once

	hits   atomic.Int64
	misses atomic.Int64
}

type memoryEntry struct {
	key       string
	vector    []float32
	expiresAt time.Time
}

// MemoryCacheConfig holds configuration for MemoryCache.
type MemoryCacheConfig struct {
	MaxEntries      int           // default 4096
	TTL             time.Duration // default 10 minutes
	CleanupInterval time.Duration // default 1 minute
}

// NewMemoryCache creates a memory cache with LRU eviction.
func NewMemoryCache(cfg MemoryCacheConfig) *MemoryCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 4096
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	c := &MemoryCache{
		entries:     make(map[string]*list.Element),
		order:       list.New(),
		maxEntries:  cfg.MaxEntries,
		ttl:         cfg.TTL,
		stopCleanup: make(chan struct{}),
	}
	go c.cleanupLoop(cfg.CleanupInterval)
	return c
}

// Get returns the cached vector or nil. Expired entries count as misses
// and are removed on access.
func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, nil
	}

	entry := el.Value.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(el)
		c.misses.Add(1)
		return nil, nil
	}

	c.order.MoveToFront(el)
	c.hits.Add(1)
	return entry.vector, nil
}

// Set stores the vector, evicting the least recently used entry when full.
func (c *MemoryCache) Set(_ context.Context, key string, vector []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.vector = vector
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return nil
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	el := c.order.PushFront(&memoryEntry{
		key:       key,
		vector:    vector,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.entries[key] = el
	return nil
}

// Stats returns hit and miss counts.
func (c *MemoryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close stops the cleanup goroutine.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
	return nil
}

func (c *MemoryCache) removeLocked(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	c.order.Remove(el)
	delete(c.entries, entry.key)
}

func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCleanup:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryCache) removeExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var next *list.Element
	for el := c.order.Front(); el != nil; el = next {
		next = el.Next()
		if now.After(el.Value.(*memoryEntry).expiresAt) {
			c.removeLocked(el)
		}
	}
}
