// Package metadata implements the three-tier image-metadata fetcher
// (in-process LRU, persistent KV, origin-via-transform-primitive) with
// singleflight request coalescing.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/creachadair/mds/cache"
	"golang.org/x/sync/singleflight"

	"github.com/danielloader/imgresize/internal/cachecore"
)

// Confidence grades how the dimensions in a Metadata result were obtained.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Metadata is the canonical image-metadata result shape.
type Metadata struct {
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Format      string     `json:"format"`
	Confidence  Confidence `json:"confidence"`
	Source      string     `json:"source"`
}

// Prober is the narrow slice of the transform primitive this fetcher
// needs: probing an origin path for dimensions/format without fully
// transforming it.
type Prober interface {
	ProbeMetadata(ctx context.Context, path string) (Metadata, error)
}

// Fetcher implements fetchMetadata(path, env, request) -> Metadata. L2
// reuses the same sidecar pattern as the transform cache's KV (metadata
// stored alongside it in its own KV prefix); L1 uses creachadair/mds/
// cache.LRU, since a true recency-based LRU fits here, unlike the
// detector cache (see DESIGN.md).
type Fetcher struct {
	l1     *cache.Cache[string, Metadata]
	l2     cachecore.KV
	l3     Prober
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// New builds a Fetcher. l2TTL bounds how long an L2 entry is considered
// fresh: writes back to L2 are TTL-bounded.
func New(l1Size int, l2 cachecore.KV, l3 Prober, l2TTL time.Duration, logger *slog.Logger) *Fetcher {
	if l1Size <= 0 {
		l1Size = 2000
	}
	if l2TTL <= 0 {
		l2TTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	l1 := cache.New(cache.LRU[string, Metadata](l1Size))
	return &Fetcher{l1: l1, l2: l2, l3: l3, ttl: l2TTL, logger: logger}
}

// Fetch implements the three-tier lookup with request coalescing.
// Identical concurrent requests for the same path share one in-flight
// call, keyed by "metadata:<path>".
func (f *Fetcher) Fetch(ctx context.Context, path string) (Metadata, error) {
	if m, ok := f.l1.Get(path); ok {
		return m, nil
	}

	key := "metadata:" + path
	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		return f.fetchUncached(ctx, path)
	})
	if err != nil {
		return Metadata{}, err
	}
	return v.(Metadata), nil
}

func (f *Fetcher) fetchUncached(ctx context.Context, path string) (Metadata, error) {
	if m, ok, err := f.getL2(ctx, path); err == nil && ok {
		f.l1.Put(path, m)
		return m, nil
	} else if err != nil {
		f.logger.Warn("metadata L2 read failed", "path", path, "error", err)
	}

	m, err := f.l3.ProbeMetadata(ctx, path)
	if err != nil {
		return Metadata{}, fmt.Errorf("probing metadata for %s: %w", path, err)
	}

	f.l1.Put(path, m)
	if err := f.putL2(ctx, path, m); err != nil {
		f.logger.Warn("metadata L2 write failed", "path", path, "error", err)
	}
	return m, nil
}

func (f *Fetcher) l2Key(path string) string {
	return "metadata:" + cachecore.NormalizePath(path)
}

func (f *Fetcher) getL2(ctx context.Context, path string) (Metadata, bool, error) {
	if f.l2 == nil {
		return Metadata{}, false, nil
	}
	entry, ok, err := f.l2.Get(ctx, f.l2Key(path))
	if err != nil || !ok {
		return Metadata{}, false, err
	}
	if entry.Meta.Age(timeNow()) > f.ttl {
		return Metadata{}, false, nil
	}
	var m Metadata
	if err := json.Unmarshal(entry.Value, &m); err != nil {
		return Metadata{}, false, nil
	}
	return m, true, nil
}

func (f *Fetcher) putL2(ctx context.Context, path string, m Metadata) error {
	if f.l2 == nil {
		return nil
	}
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return f.l2.Put(ctx, f.l2Key(path), cacheEntryFor(body, f.ttl))
}
