package cachecore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danielloader/imgresize/internal/types"
)

// PathTag returns the single tag that identifies every cache entry for
// exactly this path, regardless of transform options. It is the
// path-scoped subset of Tags: unlike file-<name> or ext-<ext>, this tag
// is never shared with a different path.
func PathTag(prefix, path string) string {
	return prefix + sanitizeTag("path-"+NormalizePath(path))
}

// Tags computes the cache-tag set for path + opts.
// prefix is the configured cache-tag prefix (default "img-").
func Tags(prefix, path string, opts types.TransformOptions) []string {
	norm := NormalizePath(path)
	segs := strings.Split(strings.Trim(norm, "/"), "/")

	var tags []string
	add := func(s string) { tags = append(tags, prefix+sanitizeTag(s)) }

	add("path-" + norm)
	if len(segs) > 1 {
		for i, seg := range segs {
			add(fmt.Sprintf("segment-%d-%s", i, seg))
		}
	}
	if len(segs) > 0 {
		file := segs[len(segs)-1]
		add("file-" + file)
		if dot := strings.LastIndex(file, "."); dot >= 0 && dot < len(file)-1 {
			add("ext-" + file[dot+1:])
		}
	}

	if opts.Width > 0 {
		add("width-" + strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		add("height-" + strconv.Itoa(opts.Height))
	}
	if opts.Width > 0 && opts.Height > 0 {
		add(fmt.Sprintf("dimensions-%dx%d", opts.Width, opts.Height))
	}
	if opts.Format != "" && opts.Format != types.FormatAuto {
		add("format-" + string(opts.Format))
	}
	if opts.Quality > 0 {
		add("quality-" + strconv.Itoa(opts.Quality))
	}
	if opts.Fit != "" {
		add("fit-" + string(opts.Fit))
	}
	if opts.Derivative != "" {
		add("derivative-" + opts.Derivative)
	}

	return tags
}

// sanitizeTag replaces dots with "-" for header safety.
func sanitizeTag(s string) string {
	return strings.ReplaceAll(s, ".", "-")
}
