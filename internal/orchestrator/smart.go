package orchestrator

import (
	"context"

	"github.com/danielloader/imgresize/internal/transform"
	"github.com/danielloader/imgresize/internal/types"
)

// applySmart resolves smart-mode's deferred width/height/focal decisions
// once the source image's metadata is known. A probe failure or disabled
// fetcher leaves opts untouched: smart-mode degrades to whatever the query
// and derivative already resolved.
func (h *Handler) applySmart(ctx context.Context, path string, opts types.TransformOptions) types.TransformOptions {
	if !opts.Smart || h.Metadata == nil {
		return opts
	}

	m, err := h.Metadata.Fetch(ctx, path)
	if err != nil {
		h.Logger.Warn("smart-mode metadata probe failed", "path", path, "error", err)
		return opts
	}
	if m.Width <= 0 || m.Height <= 0 {
		return opts
	}

	if opts.Aspect != "" && !opts.WasUserSet("height") {
		if aw, ah, ok := transform.ParseAspect(opts.Aspect); ok {
			width := opts.Width
			if width <= 0 {
				width = m.Width
			}
			opts.Width = width
			opts.Height = int(float64(width) * ah / aw)
			opts.Provenance["width"] = types.ProvenanceDetector
			opts.Provenance["height"] = types.ProvenanceDetector
		}
	}

	if opts.Focal != "" && !opts.Gravity.HasXY {
		if fx, fy, ok := transform.ParseFocal(opts.Focal); ok {
			opts.Gravity = types.Gravity{X: fx, Y: fy, HasXY: true}
		}
	}

	return opts
}
