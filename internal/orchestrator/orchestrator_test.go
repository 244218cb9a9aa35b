package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielloader/imgresize/internal/cachecore"
	"github.com/danielloader/imgresize/internal/config"
	"github.com/danielloader/imgresize/internal/detector"
	"github.com/danielloader/imgresize/internal/resilience"
	"github.com/danielloader/imgresize/internal/storage"
	"github.com/danielloader/imgresize/internal/transform"
	"github.com/danielloader/imgresize/internal/transformclient"
	"github.com/danielloader/imgresize/internal/types"
)

// fakeTransport is a per-origin storage.OriginFetcher test double that
// counts calls and records the headers it was handed, so tests can assert
// on auth headers reaching the "upstream" without a real HTTP server.
type fakeTransport struct {
	mu       sync.Mutex
	calls    int32
	lastHdrs map[string]string
	body     []byte
	notFound bool
	err      error
}

func (f *fakeTransport) Fetch(ctx context.Context, path string, headers map[string]string) (types.StorageResult, bool, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.lastHdrs = headers
	f.mu.Unlock()
	if f.err != nil {
		return types.StorageResult{}, f.notFound, f.err
	}
	return types.StorageResult{Body: f.body, SourceTag: types.SourceRemote, ContentType: "image/jpeg", Size: int64(len(f.body))}, false, nil
}

func (f *fakeTransport) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

// memKV is a minimal in-process implementation of cachecore.KV for
// orchestrator tests that need a real (if volatile) persistent layer.
type memKV struct {
	mu      sync.Mutex
	entries map[string]types.CacheEntry
	tags    map[string][]string
}

func newMemKV() *memKV {
	return &memKV{entries: map[string]types.CacheEntry{}, tags: map[string][]string{}}
}

func (m *memKV) Get(ctx context.Context, key string) (types.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *memKV) Put(ctx context.Context, key string, entry types.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memKV) ListByTag(ctx context.Context, tag string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.tags[tag]))
	copy(out, m.tags[tag])
	return out, nil
}

func (m *memKV) IndexTags(ctx context.Context, fingerprint string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tag := range tags {
		found := false
		for _, v := range m.tags[tag] {
			if v == fingerprint {
				found = true
				break
			}
		}
		if !found {
			m.tags[tag] = append(m.tags[tag], fingerprint)
		}
	}
	return nil
}

func (m *memKV) DeindexTags(ctx context.Context, fingerprint string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tag := range tags {
		out := m.tags[tag][:0]
		for _, v := range m.tags[tag] {
			if v != fingerprint {
				out = append(out, v)
			}
		}
		m.tags[tag] = out
	}
	return nil
}

func newTestHandler(t *testing.T, transport *fakeTransport, origin types.Origin, secrets map[string]string) (*Handler, *memKV) {
	t.Helper()
	file := config.DefaultFile()
	kv := newMemKV()
	cache := cachecore.New(kv, file, nil)
	fetcher := &storage.Fetcher{
		Entries:       []storage.Entry{{Origin: origin, Transport: transport}},
		Secrets:       config.Env{Secrets: secrets},
		SecurityLevel: types.SecurityStrict,
		Retry:         resilience.NewRetrier(1, 0, 0),
	}
	h := New(config.Config{File: file}, transform.New(nil), detector.New(600, 1000, detector.DefaultThresholds()), fetcher, cache, transformclient.NewNoopClient(), nil)
	return h, kv
}

// doRequest invokes the handler and drains its background cache write
// before returning, so callers can assert on persisted cache state
// immediately without a follow-up Shutdown call.
func doRequest(h *Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	h.Shutdown(time.Second) // drain the background cache write before returning
	return w
}

// TestColdHitPath is an end-to-end scenario: a bearer-authed origin,
// width/quality options, empty cache. First request is a MISS that hits
// the origin once; after the background write drains, a second
// identical request is a HIT with the same bytes.
func TestColdHitPath(t *testing.T) {
	transport := &fakeTransport{body: []byte("image-bytes")}
	origin := types.Origin{ID: "o1", DomainPattern: "img.example.com", Enabled: true, AuthKind: types.AuthBearer, AuthParams: types.AuthParams{SecretRef: "origin-secret"}}
	h, _ := newTestHandler(t, transport, origin, map[string]string{"origin-secret": "shh"})

	w1 := doRequest(h, "/cat.jpg?width=400&quality=80", map[string]string{"Accept": "image/webp"})
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w1.Code, w1.Body.String())
	}
	if w1.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("expected X-Cache: MISS on first request, got %q", w1.Header().Get("X-Cache"))
	}
	if transport.callCount() != 1 {
		t.Fatalf("expected origin called once, got %d", transport.callCount())
	}
	if transport.lastHdrs["Authorization"] == "" {
		t.Fatal("expected a bearer Authorization header reaching the origin")
	}

	w2 := doRequest(h, "/cat.jpg?width=400&quality=80", map[string]string{"Accept": "image/webp"})
	if w2.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("expected X-Cache: HIT on second request, got %q", w2.Header().Get("X-Cache"))
	}
	if w2.Body.String() != w1.Body.String() {
		t.Fatalf("expected identical bytes on cache hit, got %q vs %q", w2.Body.String(), w1.Body.String())
	}
	if transport.callCount() != 1 {
		t.Fatalf("expected origin not re-fetched on a cache hit, got %d calls", transport.callCount())
	}
}

// TestDebugBypassSkipsCache covers a debug=true query that scores above
// the bypass threshold, so the persistent cache is neither read nor
// written and every request re-fetches from the origin.
func TestDebugBypassSkipsCache(t *testing.T) {
	transport := &fakeTransport{body: []byte("image-bytes")}
	origin := types.Origin{ID: "o1", DomainPattern: "img.example.com", Enabled: true, AuthKind: types.AuthNone}
	h, kv := newTestHandler(t, transport, origin, nil)

	doRequest(h, "/cat.jpg?width=400&debug=true", nil)
	doRequest(h, "/cat.jpg?width=400&debug=true", nil)

	if transport.callCount() != 2 {
		t.Fatalf("expected the origin hit on every bypassed request, got %d calls", transport.callCount())
	}
	if len(kv.entries) != 0 {
		t.Fatalf("expected nothing persisted for a bypassed request, got %d entries", len(kv.entries))
	}
}

// TestAuthFailureStrictMode covers an s3-sig origin with a missing AWS
// secret, in strict mode, which must fail the request without delivering
// any bytes.
func TestAuthFailureStrictMode(t *testing.T) {
	transport := &fakeTransport{body: []byte("should-not-be-seen")}
	origin := types.Origin{
		ID: "o2", DomainPattern: "private.example.com", Enabled: true,
		AuthKind:   types.AuthS3Sig,
		AuthParams: types.AuthParams{AccessKeyRef: "ak", SecretKeyRef: "missing-secret", Region: "us-east-1", Service: "s3"},
	}
	h, _ := newTestHandler(t, transport, origin, map[string]string{"ak": "present"})

	w := doRequest(h, "/private/x.png", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on strict-mode auth failure, got %d", w.Code)
	}
	if transport.callCount() != 0 {
		t.Fatal("expected the origin never to be called when auth fails in strict mode")
	}
}

// TestTagPurgeForcesRefetch covers two requests under the same path
// populating entries tagged by path; purging that tag makes both
// subsequent requests MISS and refetch from the origin.
func TestTagPurgeForcesRefetch(t *testing.T) {
	transport := &fakeTransport{body: []byte("image-bytes")}
	origin := types.Origin{ID: "o1", DomainPattern: "img.example.com", Enabled: true, AuthKind: types.AuthNone}
	h, _ := newTestHandler(t, transport, origin, nil)

	doRequest(h, "/cat.jpg", nil)
	doRequest(h, "/cat.jpg?width=50", nil)

	if transport.callCount() != 2 {
		t.Fatalf("expected two origin fetches before purge, got %d", transport.callCount())
	}

	tag := h.Config.File.CacheTagPrefix + "path-cat-jpg" // tag values have dots sanitized to "-"
	result := h.Cache.PurgeByTag(context.Background(), tag)
	if result.Count < 2 {
		t.Fatalf("expected purge to remove at least 2 entries, got %d", result.Count)
	}

	doRequest(h, "/cat.jpg", nil)
	doRequest(h, "/cat.jpg?width=50", nil)

	if transport.callCount() != 4 {
		t.Fatalf("expected both paths to refetch after purge, got %d total calls", transport.callCount())
	}
}

// TestAdaptiveFormatSelection covers a request with no explicit
// format/quality, Accept listing avif+webp, and Save-Data on. The
// detector picks avif, forces quality to 70 under Save-Data, and the
// resulting cache entry is tagged with the chosen format and quality.
func TestAdaptiveFormatSelection(t *testing.T) {
	transport := &fakeTransport{body: []byte("image-bytes")}
	origin := types.Origin{ID: "o1", DomainPattern: "img.example.com", Enabled: true, AuthKind: types.AuthNone}
	h, kv := newTestHandler(t, transport, origin, nil)

	doRequest(h, "/p.jpg", map[string]string{
		"Accept":    "image/avif,image/webp,*/*",
		"Save-Data": "on",
	})

	var found *types.CacheEntry
	for _, e := range kv.entries {
		e := e
		found = &e
	}
	if found == nil {
		t.Fatal("expected a persisted cache entry")
	}
	if found.Meta.TransformSnapshot.Format != types.FormatAVIF {
		t.Fatalf("expected detector to pick avif, got %q", found.Meta.TransformSnapshot.Format)
	}
	if found.Meta.TransformSnapshot.Quality != 70 {
		t.Fatalf("expected Save-Data to force quality=70, got %d", found.Meta.TransformSnapshot.Quality)
	}

	wantFormatTag := h.Config.File.CacheTagPrefix + "format-avif"
	wantQualityTag := h.Config.File.CacheTagPrefix + "quality-70"
	if !containsTag(found.Meta.Tags, wantFormatTag) {
		t.Fatalf("expected tag %q, got %v", wantFormatTag, found.Meta.Tags)
	}
	if !containsTag(found.Meta.Tags, wantQualityTag) {
		t.Fatalf("expected tag %q, got %v", wantQualityTag, found.Meta.Tags)
	}
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// TestCircuitBreakerOpensUnderWriteFailures covers five consecutive
// persistent-cache write failures opening the write breaker; the sixth
// write must not reach the persistent layer at all, and the client must
// still receive its 200 response with the transformed bytes either way:
// cache-write failures never surface to the client.
func TestCircuitBreakerOpensUnderWriteFailures(t *testing.T) {
	transport := &fakeTransport{body: []byte("image-bytes")}
	origin := types.Origin{ID: "o1", DomainPattern: "img.example.com", Enabled: true, AuthKind: types.AuthNone}
	file := config.DefaultFile()
	kv := &failingPutKV{memKV: *newMemKV()}
	cache := cachecore.New(kv, file, nil)
	cache.Breaker = resilience.NewBreakers(resilience.BreakerConfig{FailureThreshold: 5, ResetTimeout: time.Minute, SuccessThreshold: 2}, nil)
	cache.Retry = resilience.NewRetrier(1, 0, 0) // one attempt per Put call, no backoff delay

	fetcher := &storage.Fetcher{
		Entries:       []storage.Entry{{Origin: origin, Transport: transport}},
		Secrets:       config.Env{},
		SecurityLevel: types.SecurityStrict,
		Retry:         resilience.NewRetrier(1, 0, 0),
	}
	h := New(config.Config{File: file}, transform.New(nil), detector.New(600, 1000, detector.DefaultThresholds()), fetcher, cache, transformclient.NewNoopClient(), nil)

	var lastResp *httptest.ResponseRecorder
	for i := 0; i < 5; i++ {
		lastResp = doRequest(h, "/cat.jpg", nil)
	}
	if lastResp.Code != http.StatusOK {
		t.Fatalf("expected 200 even while writes fail, got %d", lastResp.Code)
	}
	if kv.putCalls() != 5 {
		t.Fatalf("expected 5 write attempts to reach the KV, got %d", kv.putCalls())
	}

	w := doRequest(h, "/cat.jpg", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on the 6th request despite an open breaker, got %d", w.Code)
	}
	if kv.putCalls() != 5 {
		t.Fatalf("expected the 6th write to be short-circuited by the open breaker, got %d total Put calls", kv.putCalls())
	}
}

// failingPutKV wraps memKV but always fails Put, so writes exhaust the
// write-path circuit breaker's failure threshold.
type failingPutKV struct {
	memKV
	calls int32
}

func (f *failingPutKV) Put(ctx context.Context, key string, entry types.CacheEntry) error {
	atomic.AddInt32(&f.calls, 1)
	return errFakeWrite
}

func (f *failingPutKV) putCalls() int {
	return int(atomic.LoadInt32(&f.calls))
}

var errFakeWrite = &fakeWriteError{}

type fakeWriteError struct{}

func (*fakeWriteError) Error() string { return "simulated persistent-cache write failure" }

// TestRootIsStaticBypassRoute covers the root path, one of the special
// paths that short-circuit before the pipeline runs at all.
func TestRootIsStaticBypassRoute(t *testing.T) {
	transport := &fakeTransport{body: []byte("x")}
	origin := types.Origin{ID: "o1", DomainPattern: "img.example.com", Enabled: true, AuthKind: types.AuthNone}
	h, _ := newTestHandler(t, transport, origin, nil)

	w := doRequest(h, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for /, got %d", w.Code)
	}
	if transport.callCount() != 0 {
		t.Fatal("expected / to never reach the storage fetcher")
	}
}
