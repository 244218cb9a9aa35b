package storage

import (
	"context"
	"net/http"
	"time"

	"github.com/danielloader/imgresize/internal/auth"
	"github.com/danielloader/imgresize/internal/errs"
	"github.com/danielloader/imgresize/internal/resilience"
	"github.com/danielloader/imgresize/internal/types"
)

// Entry pairs a declared Origin with the transport that actually knows how
// to fetch bytes from it.
type Entry struct {
	Origin    types.Origin
	Transport OriginFetcher
}

// Fetcher tries Entries in priority order, applying auth and retry per
// entry, advancing past 404/410 and falling through to the next origin on
// any other failure. Generalized from a single-upstream handleGet into an
// ordered list.
type Fetcher struct {
	Entries       []Entry
	Secrets       auth.SecretLookup
	SecurityLevel types.SecurityLevel
	Retry         *resilience.Retrier
	Now           func() time.Time
}

func (f *Fetcher) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// Fetch tries each entry in order and returns the first success. If every
// origin fails, it returns a canonical error with SourceTag=error.
func (f *Fetcher) Fetch(ctx context.Context, path string, r *http.Request) (types.StorageResult, error) {
	var lastErr error

	for _, entry := range f.Entries {
		requestPath := path
		if entry.Origin.PathTransform != nil {
			requestPath = entry.Origin.PathTransform(path)
		}

		headers := map[string]string{}
		// A disabled origin means "no auth required", not "fetch
		// forbidden": we still try it, just skip auth.
		if entry.Origin.Enabled {
			authResult, authErr := auth.Resolve(entry.Origin, requestPath, f.Secrets, f.SecurityLevel, f.now())
			if authErr != nil {
				if f.SecurityLevel == types.SecurityStrict {
					return types.StorageResult{SourceTag: types.SourceError}, authErr
				}
				lastErr = authErr
				continue
			}
			for k, v := range authResult.Headers {
				headers[k] = v
			}
			if authResult.URL != "" {
				requestPath = authResult.URL
			}
		}

		var result types.StorageResult
		fetchOnce := func(ctx context.Context) error {
			res, notFound, err := entry.Transport.Fetch(ctx, requestPath, headers)
			if notFound {
				lastErr = err
				return resilience.Terminal(err)
			}
			if err != nil {
				lastErr = err
				return err
			}
			lastErr = nil
			result = res
			return nil
		}

		if err := f.Retry.Do(ctx, fetchOnce); err != nil {
			// Either a terminal 404-style error or retries exhausted on a
			// transport error: either way, advance to the next origin.
			continue
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = errs.New(errs.KindOriginFetchFailed, nil, "no origins configured")
	}
	return types.StorageResult{SourceTag: types.SourceError}, lastErr
}
