package resilience

import "github.com/danielloader/imgresize/internal/errs"

// ExecuteWithFallback runs primary unless the failure log already holds
// >=5 entries, in which case it calls fallback directly. Otherwise it
// tries primary, and on failure records the error code and calls
// fallback.
func ExecuteWithFallback[T any](log *FailureLog, primary func() (T, error), fallback func() (T, error)) (T, error) {
	if log.ShouldBypassPrimary() {
		return fallback()
	}

	result, err := primary()
	if err == nil {
		return result, nil
	}

	log.Record(errs.KindOf(err))
	return fallback()
}
