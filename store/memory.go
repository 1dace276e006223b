package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stemformatics/mcp/metrics"
)

type memoryEntry struct {
	value    []byte
	expires  time.Time
	inserted time.Time
}

// MemoryCache is an in-process Cache with lazy TTL expiry and an optional
// periodic sweep.
type MemoryCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]memoryEntry

	group singleflight.Group
}

// NewMemoryCache creates a memory-backed cache with the given entry TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		c.mu.Lock()
		// Re-check under the write lock; a fetch may have replaced it.
		if cur, ok := c.entries[key]; ok && cur.inserted.Equal(e.inserted) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *MemoryCache) set(key string, value []byte) {
	now := time.Now()
	c.mu.Lock()
	c.entries[key] = memoryEntry{value: value, expires: now.Add(c.ttl), inserted: now}
	c.mu.Unlock()
}

// GetOrFetch implements Cache.
func (c *MemoryCache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) ([]byte, error) {
	if v, ok := c.get(key); ok {
		metrics.RecordCacheHit()
		return v, nil
	}

	// The fetch runs detached from the caller's context so an abandoned
	// request can still populate the cache for future callers.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.get(key); ok {
			metrics.RecordCacheHit()
			return v, nil
		}
		// Counted inside the single-flight function so a pile-up of
		// callers registers one miss, matching the one fetch it triggers.
		metrics.RecordCacheMiss()
		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.set(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Purge implements Cache.
func (c *MemoryCache) Purge(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

// StartSweep removes expired entries every interval until ctx is done.
func (c *MemoryCache) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

func (c *MemoryCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	for key, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Len returns the live entry count, counting entries not yet swept.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
