package cachecore

import (
	"context"

	"github.com/danielloader/imgresize/internal/resilience"
)

// PurgeResult reports how many entries a purge removed.
type PurgeResult struct {
	Count int
	Errs  []error
}

// PurgeByTag looks up matching keys via the tag index and deletes the
// entries one key at a time; deletes are not batched. Errors are
// reported, not fatal. An entry the index names but that's already gone
// is not an error, since tag-index updates are best-effort: its delete
// succeeds and it is included in Count.
func (c *Core) PurgeByTag(ctx context.Context, tag string) PurgeResult {
	var result PurgeResult
	_, err := resilience.ExecuteCtx(ctx, c.Breaker.Write, func(ctx context.Context) (struct{}, error) {
		keys, err := c.KV.ListByTag(ctx, tag)
		if err != nil {
			return struct{}{}, err
		}
		for _, key := range keys {
			if err := c.KV.Delete(ctx, key); err != nil {
				result.Errs = append(result.Errs, err)
				continue
			}
			result.Count++
		}
		c.Edge.PurgeByTag(tag)
		return struct{}{}, nil
	})
	if err != nil {
		result.Errs = append(result.Errs, err)
	}
	return result
}

// PurgeByPath purges every cache entry for path, across all of that
// path's transform-option variants. It purges only the path-<norm> tag:
// file-<name> and ext-<ext> are shared with other paths (every "foo.jpg"
// under any directory shares file-foo-jpg; every ".jpg" shares ext-jpg),
// so including them here would evict unrelated images.
func (c *Core) PurgeByPath(ctx context.Context, path string) PurgeResult {
	tag := PathTag(c.File.CacheTagPrefix, path)
	return c.PurgeByTag(ctx, tag)
}
