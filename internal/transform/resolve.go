// Package transform resolves a request's TransformOptions from its path,
// query string, and any matching derivative template.
package transform

import (
	"net/url"
	"sort"
	"strings"

	"github.com/danielloader/imgresize/internal/config"
	"github.com/danielloader/imgresize/internal/types"
)

// knownParams is the set of query parameters resolve understands. Anything
// else is preserved verbatim in Extras for the transform primitive.
var knownParams = map[string]bool{
	"width": true, "w": true, "height": true, "h": true, "fit": true,
	"gravity": true, "quality": true, "q": true, "format": true, "f": true,
	"dpr": true, "background": true, "bg": true, "sharpen": true, "blur": true,
	"rotate": true, "flip": true, "flop": true, "trim": true,
	"brightness": true, "contrast": true, "saturation": true, "gamma": true,
	"border": true, "metadata": true, "derivative": true,
	"smart": true, "platform": true, "content-type": true, "device": true,
	"aspect": true, "focal": true, "allowexpand": true,
	"cache": true, "ttl": true,
}

// Resolver matches a request path against declared derivative patterns and
// merges them with the request's query string into a TransformOptions.
type Resolver struct {
	Derivatives  []config.DerivativeFile
	PathPatterns []derivativePattern
}

type derivativePattern struct {
	prefix string
	deriv  config.DerivativeFile
}

// New builds a Resolver from the declarative derivative list, sorted so
// longest path_pattern wins ties.
func New(derivatives []config.DerivativeFile) *Resolver {
	patterns := make([]derivativePattern, 0, len(derivatives))
	for _, d := range derivatives {
		if d.PathPattern != "" {
			patterns = append(patterns, derivativePattern{prefix: d.PathPattern, deriv: d})
		}
	}
	sort.Slice(patterns, func(i, j int) bool {
		return len(patterns[i].prefix) > len(patterns[j].prefix)
	})
	return &Resolver{Derivatives: derivatives, PathPatterns: patterns}
}

// matchDerivative returns the longest-matching derivative template for
// path, by prefix match against its declared path_pattern.
func (r *Resolver) matchDerivative(path string) (config.DerivativeFile, bool) {
	for _, p := range r.PathPatterns {
		if strings.HasPrefix(path, p.prefix) {
			return p.deriv, true
		}
	}
	return config.DerivativeFile{}, false
}

// Resolve extracts the matching derivative, loads its template, parses
// the query string, coerces and validates, then merges (query wins over
// derivative).
func (r *Resolver) Resolve(path string, query url.Values) (types.TransformOptions, error) {
	opts := types.TransformOptions{
		Provenance: make(map[string]types.Provenance),
		Extras:     make(map[string]string),
	}

	if deriv, ok := r.matchDerivative(path); ok {
		applyDerivative(&opts, deriv)
	}

	if err := mergeQuery(&opts, query); err != nil {
		return types.TransformOptions{}, err
	}

	return opts, nil
}

func applyDerivative(opts *types.TransformOptions, d config.DerivativeFile) {
	opts.Derivative = d.Name
	if d.Width > 0 {
		opts.Width = d.Width
		opts.Provenance["width"] = types.ProvenanceDerivative
	}
	if d.Height > 0 {
		opts.Height = d.Height
		opts.Provenance["height"] = types.ProvenanceDerivative
	}
	if d.Fit != "" {
		opts.Fit = types.Fit(d.Fit)
		opts.Provenance["fit"] = types.ProvenanceDerivative
	}
	if d.Quality > 0 {
		opts.Quality = d.Quality
		opts.Provenance["quality"] = types.ProvenanceDerivative
	}
	if d.Format != "" {
		opts.Format = types.Format(d.Format)
		opts.Provenance["format"] = types.ProvenanceDerivative
	}
}
