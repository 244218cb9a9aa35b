package cachecore

import (
	"net/http"
	"strings"

	"github.com/danielloader/imgresize/internal/types"
)

// BypassScore computes the cache-bypass heuristic score, capped to
// [0,100]. ShouldBypass is true iff the score is at or above threshold.
func BypassScore(r *http.Request, opts types.TransformOptions) int {
	score := 0
	q := r.URL.Query()

	if q.Has("debug") || q.Has("no-cache") {
		score += 80
	}

	for _, p := range []string{"_", "cacheBuster", "v", "t"} {
		if q.Has(p) {
			score += 60
			break
		}
	}

	cc := r.Header.Get("Cache-Control")
	if containsDirective(cc, "no-cache") || containsDirective(cc, "no-store") ||
		containsDirective(r.Header.Get("Pragma"), "no-cache") {
		score += 50
	}

	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		score += 20
	}

	if opts.Width == 0 && opts.Height == 0 {
		score += 15
	}

	if opts.Format == types.FormatAuto || opts.Format == "" {
		score += 10
	}

	if opts.Blur > 0 || opts.Sharpen > 0 || opts.Rotate != 0 || opts.Flip || opts.Flop || opts.Trim {
		score += 20
	}

	if opts.Cache != nil {
		if !*opts.Cache {
			score += 100
		} else {
			score -= 50
		}
	}
	if opts.TTL > 0 {
		score -= 30
	}

	return clampScore(score)
}

// ShouldBypass reports whether the request's bypass score meets threshold.
func ShouldBypass(r *http.Request, opts types.TransformOptions, threshold int) bool {
	return BypassScore(r, opts) >= threshold
}

func containsDirective(header, directive string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.TrimSpace(strings.ToLower(part)) == directive {
			return true
		}
	}
	return false
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
