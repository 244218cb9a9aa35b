package metadata

import (
	"time"

	"github.com/danielloader/imgresize/internal/types"
)

func timeNow() time.Time { return time.Now() }

// cacheEntryFor wraps a JSON-encoded Metadata blob in the same
// types.CacheEntry shape the transform cache uses, so L2 can share
// cachecore's KV interface and sidecar convention instead of needing a
// second storage backend.
func cacheEntryFor(body []byte, ttl time.Duration) types.CacheEntry {
	return types.CacheEntry{
		Value: body,
		Meta: types.CacheEntryMeta{
			Timestamp:   time.Now(),
			TTL:         int(ttl.Seconds()),
			ContentType: "application/json",
		},
	}
}
