// Package detector implements UA + client-hint parsing, capability
// scoring, and the adaptive option rules optimize() applies.
package detector

import (
	"sort"
	"sync"
	"time"

	"github.com/danielloader/imgresize/internal/types"
)

type cacheEntry struct {
	info      types.ClientInfo
	expiresAt time.Time
	storedAt  time.Time
}

// Cache is the process-local detector result cache: keyed by a hash over
// the relevant headers, with a configurable TTL and max size. On overflow
// it prunes to 75% capacity, oldest entries (by insertion time) first.
// That exact algorithm is hand-rolled here rather than routed through a
// generic recency-based LRU (see DESIGN.md).
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[uint64]cacheEntry
	now     func() time.Time
}

// NewCache builds a Cache with the given TTL and max size, defaulting to
// 10 min TTL and max 1000 entries when either is non-positive.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[uint64]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached ClientInfo for key, if present and unexpired.
func (c *Cache) Get(key uint64) (types.ClientInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return types.ClientInfo{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return types.ClientInfo{}, false
	}
	return e.info, true
}

// Put stores info under key, pruning to 75% capacity (oldest-stored
// first) if the cache is at or over max size.
func (c *Cache) Put(key uint64, info types.ClientInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[key] = cacheEntry{info: info, expiresAt: now.Add(c.ttl), storedAt: now}
	if len(c.entries) > c.maxSize {
		c.pruneLocked()
	}
}

func (c *Cache) pruneLocked() {
	target := (c.maxSize * 75) / 100
	if target >= len(c.entries) {
		return
	}
	type kv struct {
		key      uint64
		storedAt time.Time
	}
	all := make([]kv, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, kv{key: k, storedAt: e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt.Before(all[j].storedAt) })

	toRemove := len(c.entries) - target
	for i := 0; i < toRemove && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}

// Reset clears the cache, e.g. on config reload.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]cacheEntry)
}

// Len reports the current entry count (for tests/metrics).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
