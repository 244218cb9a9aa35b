package cachecore

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/danielloader/imgresize/internal/config"
	"github.com/danielloader/imgresize/internal/resilience"
	"github.com/danielloader/imgresize/internal/types"
)

// Core composes the two-layer cache topology with the resilience
// primitives every cache-surface method is wrapped in: retry(breaker(op))
// plus fallback-on-sustained-failure.
type Core struct {
	Edge    *Edge
	KV      KV
	File    config.File
	Breaker resilience.Breakers
	Retry   *resilience.Retrier
	Fail    *resilience.FailureLog
	Access  *AccessTracker
	Now     func() time.Time
	Logger  *slog.Logger
}

// New builds a Core over kv with the given file config and default
// resilience primitives.
func New(kv KV, file config.File, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	initial, maxDelay, attempts := file.Retry.Durations()
	breakerCfg := resilience.BreakerConfig{
		FailureThreshold: uint32(file.Breaker.FailureThreshold),
		ResetTimeout:     time.Duration(file.Breaker.ResetTimeoutMs) * time.Millisecond,
		SuccessThreshold: uint32(file.Breaker.SuccessThreshold),
	}
	onStateChange := func(name string, from, to gobreaker.State) {
		logger.Warn("cache circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
	}
	return &Core{
		Edge:    NewEdge(),
		KV:      kv,
		File:    file,
		Breaker: resilience.NewBreakers(breakerCfg, onStateChange),
		Retry:   resilience.NewRetrier(attempts, initial, maxDelay),
		Fail:    resilience.NewFailureLog(),
		Access:  NewAccessTracker(0),
		Now:     time.Now,
		Logger:  logger,
	}
}

// Result is what Get returns on a hit: the synthesized response plus the
// headers the live response needs.
type Result struct {
	Body        []byte
	ContentType string
	Tags        []string
	Fingerprint string
	Age         int
	TTL         int
	FromEdge    bool
}

// Get implements the lookup order edge (A) -> persistent (B) -> miss.
// Missing/invalid metadata never rejects the entry; safe defaults are
// substituted and a warning logged, so the cache never poisons.
func (c *Core) Get(ctx context.Context, r *http.Request, path string, opts types.TransformOptions) (Result, bool) {
	fp := Fingerprint(path, opts)

	if e, ok := c.Edge.Get(r.URL.String()); ok && e.fingerprint == fp {
		age := int(c.Now().Sub(e.storedAt).Seconds())
		return Result{Body: e.body, ContentType: e.contentType, Tags: e.tags, Fingerprint: fp, Age: age, TTL: e.ttl, FromEdge: true}, true
	}

	entry, ok := c.getFromKVResilient(ctx, fp)
	if !ok {
		return Result{}, false
	}

	meta := withSafeDefaults(entry.Meta, c.Logger, fp)
	age := int(meta.Age(c.Now()).Seconds())

	c.Edge.Put(r.URL.String(), edgeEntry{
		body: entry.Value, contentType: meta.ContentType, tags: meta.Tags,
		fingerprint: fp, storedAt: c.Now().Add(-time.Duration(age) * time.Second), ttl: meta.TTL,
	})

	return Result{
		Body: entry.Value, ContentType: meta.ContentType, Tags: meta.Tags,
		Fingerprint: fp, Age: age, TTL: meta.TTL,
	}, true
}

// withSafeDefaults fills zero/invalid metadata fields so a corrupt or
// partially-written sidecar never blocks serving the entry.
func withSafeDefaults(m types.CacheEntryMeta, logger *slog.Logger, fingerprint string) types.CacheEntryMeta {
	if m.Timestamp.IsZero() {
		logger.Warn("cache entry missing timestamp, using safe default", "fingerprint", fingerprint)
		m.Timestamp = time.Now()
	}
	if m.TTL <= 0 {
		logger.Warn("cache entry missing/invalid ttl, using safe default", "fingerprint", fingerprint)
		m.TTL = types.DefaultSafeTTL
	}
	if m.ContentType == "" {
		m.ContentType = "application/octet-stream"
	}
	return m
}

type kvGetResult struct {
	entry types.CacheEntry
	found bool
}

// getFromKVResilient reads the persistent layer through retry(breaker(op))
// plus fallback-to-miss on sustained failure. Any failure (breaker open,
// retries exhausted, read error) is logged and treated as a miss rather
// than propagated, matching the orchestrator's "cache failures degrade to
// fetch+transform" contract.
func (c *Core) getFromKVResilient(ctx context.Context, fp string) (types.CacheEntry, bool) {
	result, err := resilience.ExecuteWithFallback(c.Fail,
		func() (kvGetResult, error) {
			return resilience.ExecuteCtx(ctx, c.Breaker.Read, func(ctx context.Context) (kvGetResult, error) {
				var out kvGetResult
				err := c.Retry.Do(ctx, func(ctx context.Context) error {
					e, found, err := c.KV.Get(ctx, fp)
					if err != nil {
						return err
					}
					out = kvGetResult{entry: e, found: found}
					return nil
				})
				return out, err
			})
		},
		func() (kvGetResult, error) {
			return kvGetResult{}, nil
		},
	)
	if err != nil {
		c.Logger.Warn("cache read failed", "fingerprint", fp, "error", err)
		return types.CacheEntry{}, false
	}
	return result.entry, result.found
}
