// Package orchestrator composes the request-serving pipeline: bypass
// short-circuit, options resolution, bypass scoring, cache lookup,
// detector merge, storage fetch, transform, background cache write,
// debug headers.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielloader/imgresize/internal/cachecore"
	"github.com/danielloader/imgresize/internal/config"
	"github.com/danielloader/imgresize/internal/detector"
	"github.com/danielloader/imgresize/internal/errs"
	"github.com/danielloader/imgresize/internal/metadata"
	"github.com/danielloader/imgresize/internal/storage"
	"github.com/danielloader/imgresize/internal/transform"
	"github.com/danielloader/imgresize/internal/transformclient"
	"github.com/danielloader/imgresize/internal/types"
)

// Handler is the main HTTP handler for the image-resizing worker: a
// struct of collaborators with a single ServeHTTP entrypoint.
type Handler struct {
	Config    config.Config
	Resolver  *transform.Resolver
	Detector  *detector.Detector
	Fetcher   *storage.Fetcher
	Cache     *cachecore.Core
	Transform transformclient.Client
	Metadata  *metadata.Fetcher
	Logger    *slog.Logger
	Debug     *debugReporter

	wg sync.WaitGroup
}

// New wires a Handler from its collaborators. Building the collaborators
// themselves (the config-to-struct translation, the KV client, the S3
// origins) is internal/wire's job. meta may be nil: smart-mode requests
// then fall back to the query-supplied options untouched.
func New(cfg config.Config, resolver *transform.Resolver, det *detector.Detector, fetcher *storage.Fetcher, cache *cachecore.Core, tc transformclient.Client, meta *metadata.Fetcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Config: cfg, Resolver: resolver, Detector: det, Fetcher: fetcher,
		Cache: cache, Transform: tc, Metadata: meta, Logger: logger, Debug: newDebugReporter(),
	}
}

// Shutdown waits for in-flight background cache writes to finish, up to
// the given timeout.
func (h *Handler) Shutdown(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

func (h *Handler) afterResponse(fn func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now() // step 1: metrics frame

	if handled := h.handleBypassRoute(w, r); handled {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	query := r.URL.Query()

	opts, err := h.Resolver.Resolve(r.URL.Path, query) // step 3
	if err != nil {
		h.writeError(w, err)
		return
	}
	opts = h.applySmart(r.Context(), path, opts)

	bypassScore := cachecore.BypassScore(r, opts) // step 4
	bypass := bypassScore >= h.Config.File.BypassThreshold()

	var result cachecore.Result
	var hit bool
	if !bypass {
		result, hit = h.Cache.Get(r.Context(), r, path, opts) // step 5
	}

	if hit {
		h.writeHit(w, r, result, start)
		return
	}

	info := h.Detector.Detect(r) // step 6
	opts = h.Detector.Optimize(info, opts)

	storageResult, err := h.Fetcher.Fetch(r.Context(), path, r) // step 7
	if err != nil {
		h.writeError(w, err)
		return
	}

	tr, err := h.Transform.Transform(r.Context(), storageResult.Body, opts) // step 8
	if err != nil {
		h.writeError(w, errs.New(errs.KindTransformFailed, err, "transform primitive call failed"))
		return
	}

	ttl := cachecore.TTL(cachecore.TTLInput{
		Status: http.StatusOK, Path: path, Opts: opts,
		ContentType: tr.ContentType, ContentLength: int64(len(tr.Body)),
		File: h.Config.File, Tracker: h.Cache.Access,
	})
	tags := cachecore.Tags(h.Config.File.CacheTagPrefix, path, opts)

	h.writeMiss(w, r, tr, tags, ttl, info, opts, storageResult, start, bypass)

	if !bypass {
		h.Cache.Put(r.Context(), r, h.afterResponse, cachecore.PutInput{ // step 9
			Path: path, Opts: opts, Body: tr.Body, ContentType: tr.ContentType,
			OriginalSize: storageResult.Size, StorageType: string(storageResult.SourceTag),
			Status: http.StatusOK, Width: tr.Width, Height: tr.Height,
		})
	}
}

// handleBypassRoute implements step 2: special paths that skip the cache
// pipeline entirely.
func (h *Handler) handleBypassRoute(w http.ResponseWriter, r *http.Request) bool {
	switch r.URL.Path {
	case "/", "/healthz":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "ok")
		return true
	case "/debug-report":
		h.Debug.WriteReport(w, h)
		return true
	case "/debug/kv-config":
		h.Debug.WriteKVConfig(w, h.Config)
		return true
	}
	return false
}

func (h *Handler) writeHit(w http.ResponseWriter, r *http.Request, res cachecore.Result, start time.Time) {
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(res.Body)))
	w.Header().Set("Cache-Tag", strings.Join(res.Tags, ","))
	w.Header().Set("X-Cache", "HIT")
	w.Header().Set("Age", fmt.Sprintf("%d", res.Age))
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", cachecore.LiveMaxAge(res.TTL, res.Age)))
	w.Header().Set("Surrogate-Control", fmt.Sprintf("public, max-age=%d", res.TTL))
	if h.debugEnabled(r) {
		h.Debug.AttachHeaders(w, debugContext{Performance: time.Since(start), StorageSource: "cache"})
	}
	w.WriteHeader(http.StatusOK)
	w.Write(res.Body)
}

func (h *Handler) writeMiss(w http.ResponseWriter, r *http.Request, tr transformclient.Result, tags []string, ttl int, info types.ClientInfo, opts types.TransformOptions, sr types.StorageResult, start time.Time, bypass bool) {
	w.Header().Set("Content-Type", tr.ContentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(tr.Body)))
	w.Header().Set("Cache-Tag", strings.Join(tags, ","))
	w.Header().Set("X-Cache", "MISS")
	w.Header().Set("Age", "0")
	if !bypass {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", ttl))
		w.Header().Set("Surrogate-Control", fmt.Sprintf("public, max-age=%d", ttl))
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
	for _, warning := range tr.Warnings {
		w.Header().Add("Warning", warning)
	}
	if h.debugEnabled(r) {
		h.Debug.AttachHeaders(w, debugContext{
			Performance: time.Since(start), StorageSource: string(sr.SourceTag),
			Opts: opts, Client: info, Width: tr.Width, Height: tr.Height,
		})
	}
	w.WriteHeader(http.StatusOK)
	w.Write(tr.Body)
}

func (h *Handler) debugEnabled(r *http.Request) bool {
	return r.URL.Query().Has("debug")
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	e, ok := errs.As(err)
	if !ok {
		e = errs.New(errs.KindInternal, err, "unclassified error")
	}
	h.Logger.Error("request failed", "kind", e.Kind, "status", e.HTTPStatus, "error", e.Error())
	http.Error(w, e.Error(), e.HTTPStatus)
}
