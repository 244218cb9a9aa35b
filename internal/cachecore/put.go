package cachecore

import (
	"context"
	"net/http"
	"time"

	"github.com/danielloader/imgresize/internal/resilience"
	"github.com/danielloader/imgresize/internal/types"
)

// AfterResponse is the host's "execute after response" handle: a callback
// the orchestrator hands to background work so it runs without delaying
// the client response. Generalized from a goroutine-plus-pipe tee pattern
// to a plain deferred-function handle, since this system serves its own
// response body rather than tee-ing an upstream proxy stream.
type AfterResponse func(func())

// PutInput carries everything Put needs to persist a response.
type PutInput struct {
	Path          string
	Opts          types.TransformOptions
	Body          []byte
	ContentType   string
	OriginalSize  int64
	StorageType   string
	Status        int
	Width, Height int
}

// Put computes fingerprint + tags + TTL, stores the entry in the
// in-process edge layer immediately, and schedules the persistent-layer
// write and the tag-index update via afterResponse so the client never
// waits on them. An early-abort if the persistent layer is disabled in
// config (here: if kv is nil).
func (c *Core) Put(ctx context.Context, r *http.Request, after AfterResponse, in PutInput) {
	if c.KV == nil {
		return
	}
	fp := Fingerprint(in.Path, in.Opts)
	tags := Tags(c.File.CacheTagPrefix, in.Path, in.Opts)
	ttl := TTL(TTLInput{
		Status: in.Status, Path: in.Path, Opts: in.Opts,
		ContentType: in.ContentType, ContentLength: int64(len(in.Body)),
		File: c.File, Tracker: c.Access,
	})
	c.Access.Record(in.Path)

	now := c.Now()
	ratio := 0.0
	if in.OriginalSize > 0 {
		ratio = float64(len(in.Body)) / float64(in.OriginalSize)
	}
	entry := types.CacheEntry{
		Fingerprint: fp,
		Value:       in.Body,
		Meta: types.CacheEntryMeta{
			Timestamp:         now,
			TTL:               ttl,
			ContentType:       in.ContentType,
			Size:              int64(len(in.Body)),
			OriginalSize:      in.OriginalSize,
			CompressionRatio:  ratio,
			StorageType:       in.StorageType,
			Tags:              tags,
			TransformSnapshot: in.Opts,
			Width:             in.Width,
			Height:            in.Height,
		},
	}

	requestURL := r.URL.String()
	c.Edge.Put(requestURL, edgeEntry{
		body: in.Body, contentType: in.ContentType, tags: tags,
		fingerprint: fp, storedAt: now, ttl: ttl,
	})

	after(func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.putToKVResilient(writeCtx, fp, entry); err != nil {
			c.Logger.Warn("cache write failed", "fingerprint", fp, "error", err)
			return
		}
		if err := c.KV.IndexTags(writeCtx, fp, tags); err != nil {
			c.Logger.Warn("cache tag index write failed", "fingerprint", fp, "error", err)
		}
	})
}

func (c *Core) putToKVResilient(ctx context.Context, fp string, entry types.CacheEntry) error {
	_, err := resilience.ExecuteWithFallback(c.Fail,
		func() (struct{}, error) {
			return resilience.ExecuteCtx(ctx, c.Breaker.Write, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, c.Retry.Do(ctx, func(ctx context.Context) error {
					return c.KV.Put(ctx, fp, entry)
				})
			})
		},
		func() (struct{}, error) {
			// Sustained write failure: drop the write. The client already
			// has its response; losing a cache write is not fatal.
			return struct{}{}, nil
		},
	)
	return err
}
