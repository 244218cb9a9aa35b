package storage

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielloader/imgresize/internal/errs"
	"github.com/danielloader/imgresize/internal/types"
)

// HTTPOrigin fetches bytes over plain HTTP(S). Transport tuning (dial
// timeout, keep-alive, MaxIdleConnsPerHost) is carried over verbatim from
// the upstream proxy client this was adapted from, since a registry
// pull-through and an image origin fetcher have identical "be a
// well-behaved HTTP client to an upstream" requirements.
type HTTPOrigin struct {
	Client  *http.Client
	BaseURL string // scheme://host, path is appended per request
	Kind    types.StorageSourceTag
}

// NewHTTPOrigin builds an HTTPOrigin with the tuned transport above.
func NewHTTPOrigin(baseURL string, kind types.StorageSourceTag) *HTTPOrigin {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}
	return &HTTPOrigin{
		Client:  &http.Client{Transport: transport},
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Kind:    kind,
	}
}

func (h *HTTPOrigin) Fetch(ctx context.Context, path string, headers map[string]string) (types.StorageResult, bool, error) {
	url := h.BaseURL + "/" + strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.StorageResult{}, false, errs.New(errs.KindInternal, err, "building origin request").WithURL(url)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return types.StorageResult{}, false, errs.New(errs.KindOriginFetchFailed, err, "origin transport error").WithURL(url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return types.StorageResult{}, true, errs.New(errs.KindOriginNotFound, nil, "origin returned "+resp.Status).WithURL(url)
	}
	if resp.StatusCode >= 500 {
		return types.StorageResult{}, false, errs.New(errs.KindOriginFetchFailed, nil, "origin returned "+resp.Status).WithURL(url)
	}
	if resp.StatusCode >= 400 {
		return types.StorageResult{}, false, errs.New(errs.KindInvalidResponse, nil, "origin returned "+resp.Status).WithURL(url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.StorageResult{}, false, errs.New(errs.KindOriginFetchFailed, err, "reading origin body").WithURL(url)
	}

	return types.StorageResult{
		Body:        body,
		SourceTag:   h.Kind,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        int64(len(body)),
		Path:        path,
		OriginalURL: url,
	}, false, nil
}
