package cachecore

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/danielloader/imgresize/internal/types"
)

// NormalizePath strips leading slashes and replaces any character outside
// [A-Za-z0-9_-/.] with "-".
func NormalizePath(path string) string {
	path = strings.TrimLeft(path, "/")
	var b strings.Builder
	b.Grow(len(path))
	for _, r := range path {
		if isPathSafe(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

func isPathSafe(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-' || r == '/' || r == '.':
		return true
	default:
		return false
	}
}

// canonicalFields lists the TransformOptions fields that participate in
// the fingerprint: a canonical subset with keys sorted, where an
// auto-chosen format is excluded unless the caller set it explicitly.
func canonicalFields(o types.TransformOptions) []string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	if o.Width > 0 {
		add("width", strconv.Itoa(o.Width))
	}
	if o.Height > 0 {
		add("height", strconv.Itoa(o.Height))
	}
	if o.Fit != "" {
		add("fit", string(o.Fit))
	}
	if o.Quality > 0 {
		add("quality", strconv.Itoa(o.Quality))
	}
	// format is omitted unless the user explicitly chose a non-auto value;
	// a detector-suggested or absent format must not fragment the cache.
	if o.Format != "" && o.Format != types.FormatAuto && o.WasUserSet("format") {
		add("format", string(o.Format))
	}
	if o.DPR > 0 {
		add("dpr", strconv.FormatFloat(o.DPR, 'g', -1, 64))
	}
	if o.Gravity.Name != "" {
		add("gravity", o.Gravity.Name)
	} else if o.Gravity.HasXY {
		add("gravity", fmt.Sprintf("%g,%g", o.Gravity.X, o.Gravity.Y))
	}
	if o.Rotate != 0 {
		add("rotate", strconv.Itoa(int(o.Rotate)))
	}
	if o.Flip {
		add("flip", "1")
	}
	if o.Flop {
		add("flop", "1")
	}
	if o.Trim {
		add("trim", "1")
	}
	if o.Blur > 0 {
		add("blur", strconv.Itoa(o.Blur))
	}
	if o.Sharpen > 0 {
		add("sharpen", strconv.FormatFloat(o.Sharpen, 'g', -1, 64))
	}
	if o.Background != "" {
		add("background", o.Background)
	}
	if o.Derivative != "" {
		add("derivative", o.Derivative)
	}
	if o.MetadataStrip != "" {
		add("metadata", string(o.MetadataStrip))
	}
	sort.Strings(parts)
	return parts
}

// Fingerprint computes the canonical cache key for path + opts.
// cacheBusterParams are declared config keys that must never affect the
// fingerprint; they're query noise, already excluded here since
// fingerprinting only consumes recognized TransformOptions fields, never
// raw Extras.
func Fingerprint(path string, opts types.TransformOptions) string {
	norm := NormalizePath(path)
	fields := canonicalFields(opts)
	key := norm
	if len(fields) > 0 {
		key += "?" + strings.Join(fields, "&")
	}
	return url.QueryEscape(key)
}
