// Package transformclient narrows the out-of-scope "transform primitive"
// (which takes source bytes and TransformOptions and returns bytes,
// content type, optional warnings, and optional width/height) to the two
// operations this system actually calls.
package transformclient

import (
	"context"

	"github.com/danielloader/imgresize/internal/metadata"
	"github.com/danielloader/imgresize/internal/types"
)

// Options is an alias of the full types.TransformOptions, not a narrowed
// subset; each Client implementation decides which fields it forwards.
type Options = types.TransformOptions

// Result is what the transform primitive returns for a successful
// transform call.
type Result struct {
	Body        []byte
	ContentType string
	Warnings    []string
	Width       int
	Height      int
}

// Client is the narrow interface the orchestrator and metadata fetcher
// depend on. Production code calls out to the real pixel-pushing service;
// tests substitute a fake.
type Client interface {
	// Transform applies opts to source and returns the transformed bytes.
	Transform(ctx context.Context, source []byte, opts Options) (Result, error)
	// ProbeMetadata asks the primitive for image metadata only
	// (format=json), without producing transformed bytes.
	ProbeMetadata(ctx context.Context, path string) (metadata.Metadata, error)
}
