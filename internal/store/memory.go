package store

import (
	"context"
	"sync"
	"time"

	"github.com/muscab101/weather-app/internal/weather"
)

type entry struct {
	snapshot weather.Snapshot
	storedAt time.Time
}

// MemoryCache is a concurrency-safe in-memory snapshot cache.
// With both limits at zero it never evicts, so it grows for the lifetime of
// the process.
type MemoryCache struct {
	mu sync.RWMutex

	// key: coordinate key
	data map[string]entry
	// insertion order, used for maxEntries eviction
	keys []string

	maxEntries int           // max number of cached snapshots (0 = unlimited)
	maxAge     time.Duration // max age of a snapshot (0 = unlimited)

	now func() time.Time
}

// NewMemoryCache creates a new MemoryCache with optional limits.
func NewMemoryCache(maxEntries int, maxAge time.Duration) *MemoryCache {
	return &MemoryCache{
		data:       make(map[string]entry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Get returns the snapshot stored under key.
func (c *MemoryCache) Get(_ context.Context, key string) (weather.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || c.expired(e) {
		return weather.Snapshot{}, false
	}
	return e.snapshot, true
}

// Put stores a snapshot and enforces the entry limit.
func (c *MemoryCache) Put(_ context.Context, key string, snapshot weather.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.data[key] = entry{snapshot: snapshot, storedAt: c.now()}

	if c.maxEntries > 0 && len(c.keys) > c.maxEntries {
		over := len(c.keys) - c.maxEntries
		for _, k := range c.keys[:over] {
			delete(c.data, k)
		}
		c.keys = append([]string(nil), c.keys[over:]...)
	}
	return nil
}

// Sweep removes entries older than maxAge and returns how many were dropped.
func (c *MemoryCache) Sweep() int {
	if c.maxAge <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.keys[:0]
	removed := 0
	for _, k := range c.keys {
		if c.expired(c.data[k]) {
			delete(c.data, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	c.keys = kept
	return removed
}

// Len returns the number of stored entries, expired ones included until swept.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Clear drops every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry)
	c.keys = nil
}

func (c *MemoryCache) expired(e entry) bool {
	return c.maxAge > 0 && c.now().Sub(e.storedAt) > c.maxAge
}
