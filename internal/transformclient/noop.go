package transformclient

import (
	"context"

	"github.com/danielloader/imgresize/internal/metadata"
)

// NoopClient is a test double: it returns the source bytes unmodified and
// a fixed metadata result, letting orchestrator/cachecore tests exercise
// the pipeline without a real transform backend.
type NoopClient struct {
	ContentType     string
	Width, Height   int
	MetadataFormat  string
	MetadataConfidence metadata.Confidence
}

// NewNoopClient builds a NoopClient with reasonable test defaults.
func NewNoopClient() *NoopClient {
	return &NoopClient{ContentType: "image/jpeg", Width: 100, Height: 100, MetadataFormat: "jpeg", MetadataConfidence: metadata.ConfidenceHigh}
}

func (c *NoopClient) Transform(ctx context.Context, source []byte, opts Options) (Result, error) {
	return Result{Body: source, ContentType: c.ContentType, Width: c.Width, Height: c.Height}, nil
}

func (c *NoopClient) ProbeMetadata(ctx context.Context, path string) (metadata.Metadata, error) {
	return metadata.Metadata{
		Width: c.Width, Height: c.Height, Format: c.MetadataFormat,
		Confidence: c.MetadataConfidence, Source: "noop",
	}, nil
}
