// Package errs implements the closed error-kind taxonomy. Every error
// that crosses a collaborator boundary (HTTP client, AWS SDK, cache
// backend, transform primitive) is converted here: the sole path from
// non-core errors to user-visible failures.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the closed enumeration of error categories this package knows
// how to convert and classify.
type Kind string

const (
	KindInvalidRequest     Kind = "invalid-request"
	KindInvalidResponse    Kind = "invalid-response"
	KindAuthFailure        Kind = "auth-failure"
	KindOriginNotFound     Kind = "origin-not-found"
	KindOriginFetchFailed  Kind = "origin-fetch-failed"
	KindTransformFailed    Kind = "transform-failed"
	KindCacheUnavailable   Kind = "cache-unavailable"
	KindCacheReadFailed    Kind = "cache-read-failed"
	KindCacheWriteFailed   Kind = "cache-write-failed"
	KindCacheQuotaExceeded Kind = "cache-quota-exceeded"
	KindTagGenerationFailed Kind = "tag-generation-failed"
	KindTimeout            Kind = "timeout"
	KindCircuitOpen        Kind = "circuit-open"
	KindInternal           Kind = "internal"
)

// defaultStatus maps each Kind to its HTTP status and whether the
// originating operation is safe to retry.
var defaultStatus = map[Kind]struct {
	status    int
	retryable bool
}{
	KindInvalidRequest:      {http.StatusBadRequest, false},
	KindInvalidResponse:     {http.StatusBadGateway, false},
	KindAuthFailure:         {http.StatusBadGateway, false},
	KindOriginNotFound:      {http.StatusNotFound, false},
	KindOriginFetchFailed:   {http.StatusBadGateway, true},
	KindTransformFailed:     {http.StatusInternalServerError, false},
	KindCacheUnavailable:    {http.StatusOK, true}, // read errors degrade to miss, never surface
	KindCacheReadFailed:     {http.StatusOK, true},
	KindCacheWriteFailed:    {http.StatusOK, true},
	KindCacheQuotaExceeded:  {http.StatusOK, false},
	KindTagGenerationFailed: {http.StatusOK, false},
	KindTimeout:             {http.StatusGatewayTimeout, true},
	KindCircuitOpen:         {http.StatusServiceUnavailable, false},
	KindInternal:            {http.StatusInternalServerError, false},
}

// Error is the canonical error type every collaborator boundary converts
// into. It carries enough context for logging (URL, Details) and enough
// structure for the orchestrator to decide a response status without
// string-matching.
type Error struct {
	Kind       Kind
	HTTPStatus int
	Retryable  bool
	URL        string
	Details    string
	cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " (url=%s)", e.URL)
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a canonical Error for kind, defaulting status/retryable
// from the lookup table above. "Quota exceeded" phrases in the cause's
// message are promoted to KindCacheQuotaExceeded.
func New(kind Kind, cause error, details string) *Error {
	if cause != nil && kind != KindCacheQuotaExceeded && looksLikeQuotaExceeded(cause.Error()) {
		kind = KindCacheQuotaExceeded
	}
	d := defaultStatus[kind]
	return &Error{
		Kind:       kind,
		HTTPStatus: d.status,
		Retryable:  d.retryable,
		Details:    details,
		cause:      cause,
	}
}

// Wrap is an alias of New kept for call-site readability at boundary
// conversions ("wrap this foreign error as our kind").
func Wrap(kind Kind, cause error, details string) *Error {
	return New(kind, cause, details)
}

// WithURL attaches the originating URL and returns e for chaining.
func (e *Error) WithURL(url string) *Error {
	e.URL = url
	return e
}

func looksLikeQuotaExceeded(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "quota exceeded") || strings.Contains(lower, "quotaexceeded")
}

// As is a thin convenience wrapper over errors.As for this package's type,
// used throughout the pipeline to branch on Kind without re-importing
// "errors" everywhere.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else
// KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is a canonical Error marked retryable.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}
