package cachecore

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielloader/imgresize/internal/config"
	"github.com/danielloader/imgresize/internal/types"
)

// defaultTTLByStatus is the status-range table TTL falls back to when no
// path-pattern rule matches.
const (
	defaultTTLOK          = 3600
	defaultTTLClientError = 30
	defaultTTLServerError = 5
)

// baseTTLByStatus picks the status-range default for a response status.
func baseTTLByStatus(status int) int {
	switch {
	case status >= 200 && status < 300:
		return defaultTTLOK
	case status >= 400 && status < 500:
		return defaultTTLClientError
	case status >= 500 && status < 600:
		return defaultTTLServerError
	default:
		return defaultTTLOK
	}
}

// pathPatternTTL picks the ttl for status from a matched path pattern's
// by-status-range fields.
func pathPatternTTL(p config.PathPatternFile, status int) int {
	switch {
	case status >= 200 && status < 300:
		return p.TTLByStatus2xx
	case status >= 400 && status < 500:
		return p.TTLByStatus4xx
	case status >= 500 && status < 600:
		return p.TTLByStatus5xx
	default:
		return 0
	}
}

// AccessTracker records per-path access counts and timestamps to drive the
// "frequently accessed" tier. Process-local, pruned under the same soft
// high-watermark policy as the detector cache.
type AccessTracker struct {
	mu      sync.Mutex
	entries map[string]*accessRecord
	maxSize int
	now     func() time.Time
}

type accessRecord struct {
	hits      int
	firstSeen time.Time
	lastHour  []time.Time // hit timestamps within the last hour, trimmed on each Record
}

// NewAccessTracker builds a tracker with the given max tracked paths
// (defaulting to 10000 when non-positive).
func NewAccessTracker(maxSize int) *AccessTracker {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &AccessTracker{entries: make(map[string]*accessRecord), maxSize: maxSize, now: time.Now}
}

// Record marks one access to path.
func (t *AccessTracker) Record(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	rec, ok := t.entries[path]
	if !ok {
		if len(t.entries) >= t.maxSize {
			t.pruneLocked()
		}
		rec = &accessRecord{firstSeen: now}
		t.entries[path] = rec
	}
	rec.hits++
	rec.lastHour = append(rec.lastHour, now)
	cutoff := now.Add(-time.Hour)
	kept := rec.lastHour[:0]
	for _, ts := range rec.lastHour {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	rec.lastHour = kept
}

// IsFrequent reports whether path meets the "frequently accessed"
// definition: >=10 total hits AND (>=1 hit/hour since first seen OR >=5
// hits within the first 5h).
func (t *AccessTracker) IsFrequent(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.entries[path]
	if !ok || rec.hits < 10 {
		return false
	}
	now := t.now()
	sinceFirst := now.Sub(rec.firstSeen)
	if sinceFirst <= 0 {
		sinceFirst = time.Second
	}
	hoursSinceFirst := sinceFirst.Hours()
	if float64(rec.hits)/hoursSinceFirst >= 1 {
		return true
	}
	if sinceFirst <= 5*time.Hour && rec.hits >= 5 {
		return true
	}
	return false
}

func (t *AccessTracker) pruneLocked() {
	target := (t.maxSize * 75) / 100
	if target >= len(t.entries) {
		return
	}
	type kv struct {
		path      string
		firstSeen time.Time
	}
	all := make([]kv, 0, len(t.entries))
	for p, r := range t.entries {
		all = append(all, kv{path: p, firstSeen: r.firstSeen})
	}
	// oldest-first removal, same policy as the detector cache.
	sort.Slice(all, func(i, j int) bool { return all[i].firstSeen.Before(all[j].firstSeen) })
	toRemove := len(t.entries) - target
	for i := 0; i < toRemove && i < len(all); i++ {
		delete(t.entries, all[i].path)
	}
}

// Reset clears the tracker.
func (t *AccessTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*accessRecord)
}

// TTLInput carries everything TTL needs to apply the precedence chain.
type TTLInput struct {
	Status        int
	Path          string
	Opts          types.TransformOptions
	ContentType   string
	ContentLength int64
	File          config.File
	Tracker       *AccessTracker
}

// TTL implements the TTL precedence chain: an explicit options.ttl is
// returned as is (only clamped); otherwise the path-pattern rule, then the
// status-range default, adjusted by the first matching tier multiplier.
func TTL(in TTLInput) int {
	if in.Opts.TTL > 0 {
		return clampTTL(in.Opts.TTL, in.File)
	}

	base := 0
	if p, ok := in.File.MatchPathPattern(in.Path); ok {
		if v := pathPatternTTL(p, in.Status); v > 0 {
			base = v
		}
	}
	if base == 0 {
		base = baseTTLByStatus(in.Status)
	}

	mult := tierMultiplier(in)
	adjusted := int(float64(base) * mult)
	return clampTTL(adjusted, in.File)
}

// clampTTL bounds v to [0, maxTtl]. An explicit option.ttl is clamped too:
// it wins over path patterns and tiers, but never escapes the policy
// ceiling.
func clampTTL(v int, file config.File) int {
	if v < 0 {
		v = 0
	}
	max := file.MaxTTL()
	if v > max {
		v = max
	}
	return v
}

// tierMultiplier picks the first matching tier from in.File.Tiers
// (priority-ordered as declared, falling back to the built-in order when
// config carries none: frequent, images, small, large, default).
func tierMultiplier(in TTLInput) float64 {
	tiers := in.File.Tiers
	if len(tiers) == 0 {
		tiers = config.DefaultFile().Tiers
	}
	for _, tier := range tiers {
		if tierMatches(tier.Name, in) {
			return tier.Multiplier
		}
	}
	return 1.0
}

func tierMatches(name string, in TTLInput) bool {
	switch strings.ToLower(name) {
	case "frequent":
		return in.Tracker != nil && in.Tracker.IsFrequent(in.Path)
	case "images":
		return strings.HasPrefix(in.ContentType, "image/")
	case "small":
		return in.ContentLength > 0 && in.ContentLength <= 50*1024
	case "large":
		return in.ContentLength >= 1024*1024
	case "default":
		return true
	default:
		return false
	}
}

// LiveMaxAge formats the Cache-Control max-age value for a live TTL/age
// pair.
func LiveMaxAge(ttl, ageSeconds int) int {
	v := ttl - ageSeconds
	if v < 0 {
		return 0
	}
	return v
}

// ParseContentLength reads Content-Length off a response header set,
// returning 0 if absent or invalid.
func ParseContentLength(h http.Header) int64 {
	n, err := strconv.ParseInt(h.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
