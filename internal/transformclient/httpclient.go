package transformclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/danielloader/imgresize/internal/metadata"
)

// HTTPClient calls a transform primitive reachable over HTTP, the shape
// most platform "image resizing" primitives take (a sidecar service or
// managed endpoint). It is a thin translation layer only: no pixel logic
// lives in this repo.
type HTTPClient struct {
	Client  *http.Client
	BaseURL string
}

// NewHTTPClient builds an HTTPClient targeting baseURL using
// http.DefaultClient; the storage fetcher's transport tuning is not
// applied here.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{Client: http.DefaultClient, BaseURL: baseURL}
}

func (c *HTTPClient) Transform(ctx context.Context, source []byte, opts Options) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transform?"+encodeOptions(opts), bytes.NewReader(source))
	if err != nil {
		return Result{}, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("calling transform primitive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("transform primitive returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("reading transform response: %w", err)
	}

	width, _ := strconv.Atoi(resp.Header.Get("X-Image-Width"))
	height, _ := strconv.Atoi(resp.Header.Get("X-Image-Height"))
	var warnings []string
	if w := resp.Header.Get("Warning"); w != "" {
		warnings = []string{w}
	}

	return Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Warnings:    warnings,
		Width:       width,
		Height:      height,
	}, nil
}

func (c *HTTPClient) ProbeMetadata(ctx context.Context, path string) (metadata.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/metadata?path="+url.QueryEscape(path)+"&format=json", nil)
	if err != nil {
		return metadata.Metadata{}, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return metadata.Metadata{}, fmt.Errorf("probing transform primitive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return metadata.Metadata{}, fmt.Errorf("metadata probe returned status %d", resp.StatusCode)
	}

	var m metadata.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return metadata.Metadata{}, fmt.Errorf("decoding metadata probe response: %w", err)
	}
	if m.Source == "" {
		m.Source = "transform-primitive"
	}
	return m, nil
}

func encodeOptions(o Options) string {
	v := url.Values{}
	if o.Width > 0 {
		v.Set("width", strconv.Itoa(o.Width))
	}
	if o.Height > 0 {
		v.Set("height", strconv.Itoa(o.Height))
	}
	if o.Fit != "" {
		v.Set("fit", string(o.Fit))
	}
	if o.Quality > 0 {
		v.Set("quality", strconv.Itoa(o.Quality))
	}
	if o.Format != "" {
		v.Set("format", string(o.Format))
	}
	for k, val := range o.Extras {
		v.Set(k, val)
	}
	return v.Encode()
}
