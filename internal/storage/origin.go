// Package storage implements the multi-origin fetcher that tries origins
// in priority order, applying per-origin path transforms and auth,
// retrying transport errors, and falling through 404/410 to the next
// origin.
package storage

import (
	"context"

	"github.com/danielloader/imgresize/internal/types"
)

// OriginFetcher is the narrow per-origin transport the multi-origin
// Fetcher composes. httporigin and s3origin each implement it.
type OriginFetcher interface {
	// Fetch retrieves path from this origin. notFound is true for a
	// semantic 404/410 (advance to next origin); any other non-nil err
	// (transport error, 5xx, or another 4xx) is retried before falling
	// through.
	Fetch(ctx context.Context, path string, headers map[string]string) (result types.StorageResult, notFound bool, err error)
}

// MatchOrigin returns the first origin (in declaration order) whose
// domain pattern matches host: domain patterns are matched in declaration
// order, first match wins.
func MatchOrigin(origins []types.Origin, host string) (types.Origin, bool) {
	for _, o := range origins {
		if o.Matches(host) {
			return o, true
		}
	}
	return types.Origin{}, false
}
