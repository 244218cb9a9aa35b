package cachecore

import (
	"sync"
	"time"
)

// edgeEntry mirrors the bytes and response headers the host's edge HTTP
// cache would hold, keyed by the full request URL: layer A, the host
// edge-HTTP cache.
type edgeEntry struct {
	body        []byte
	contentType string
	tags        []string
	fingerprint string
	storedAt    time.Time
	ttl         int
}

// Edge is an in-process stand-in for the host's edge HTTP cache (layer A).
// Production deployments behind a real CDN get this for free from the
// edge; this type exists so a single-process deployment of this system
// still honors the two-layer lookup order.
type Edge struct {
	mu      sync.RWMutex
	entries map[string]edgeEntry
}

// NewEdge builds an empty edge cache.
func NewEdge() *Edge {
	return &Edge{entries: make(map[string]edgeEntry)}
}

// Get returns the cached entry for requestURL, if present.
func (e *Edge) Get(requestURL string) (edgeEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.entries[requestURL]
	return v, ok
}

// Put stores an entry for requestURL.
func (e *Edge) Put(requestURL string, entry edgeEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries[requestURL] = entry
}

// PurgeByFingerprint removes every edge entry pointing at fingerprint.
// Layer A is keyed by request URL, not fingerprint, so this is a scan;
// acceptable because layer A's purpose is hot-path short-circuiting, not
// the authoritative store (layer B is authoritative).
func (e *Edge) PurgeByFingerprint(fingerprint string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for k, v := range e.entries {
		if v.fingerprint == fingerprint {
			delete(e.entries, k)
			n++
		}
	}
	return n
}

// PurgeByTag removes every edge entry carrying tag.
func (e *Edge) PurgeByTag(tag string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for k, v := range e.entries {
		for _, t := range v.tags {
			if t == tag {
				delete(e.entries, k)
				n++
				break
			}
		}
	}
	return n
}
