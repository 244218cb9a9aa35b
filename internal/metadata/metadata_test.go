package metadata

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielloader/imgresize/internal/types"
)

// memKV is a tiny in-process fake of cachecore.KV, local to this package so
// metadata tests don't need to import cachecore's test helpers.
type memKV struct {
	mu      sync.Mutex
	entries map[string]types.CacheEntry
}

func newMemKV() *memKV {
	return &memKV{entries: map[string]types.CacheEntry{}}
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

func (m *memKV) ListByTag(ctx context.Context, tag string) ([]string, error) { return nil, nil }
func (m *memKV) IndexTags(ctx context.Context, fingerprint string, tags []string) error {
	return nil
}
func (m *memKV) DeindexTags(ctx context.Context, fingerprint string, tags []string) error {
	return nil
}

// countingProber is a fake L3 that counts calls and can be told to block
// until released, to make singleflight coalescing observable.
type countingProber struct {
	calls   int32
	block   chan struct{}
	result  Metadata
	probeOn sync.WaitGroup
}

func (p *countingProber) ProbeMetadata(ctx context.Context, path string) (Metadata, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.block != nil {
		p.probeOn.Done()
		<-p.block
	}
	return p.result, nil
}

func TestFetchPopulatesL1FromL3AndSkipsItOnSecondCall(t *testing.T) {
	prober := &countingProber{result: Metadata{Width: 800, Height: 600, Format: "jpeg", Confidence: ConfidenceHigh, Source: "origin"}}
	f := New(10, newMemKV(), prober, time.Hour, nil)

	m1, err := f.Fetch(context.Background(), "cat.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m1.Width != 800 || m1.Height != 600 {
		t.Fatalf("unexpected metadata from L3: %+v", m1)
	}
	if atomic.LoadInt32(&prober.calls) != 1 {
		t.Fatalf("expected exactly one L3 probe, got %d", prober.calls)
	}

	m2, err := f.Fetch(context.Background(), "cat.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m2 != m1 {
		t.Fatalf("expected L1 hit to return the same metadata, got %+v vs %+v", m2, m1)
	}
	if atomic.LoadInt32(&prober.calls) != 1 {
		t.Fatalf("expected L1 hit to skip L3 entirely, call count grew to %d", prober.calls)
	}
}

func TestFetchUsesL2BeforeFallingBackToL3(t *testing.T) {
	kv := newMemKV()
	seeded := Metadata{Width: 1024, Height: 768, Format: "png", Confidence: ConfidenceMedium, Source: "l2-seed"}
	body, err := json.Marshal(seeded)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	if err := kv.Put(context.Background(), "metadata:dog.png", cacheEntryFor(body, time.Hour)); err != nil {
		t.Fatalf("seed L2: %v", err)
	}

	prober := &countingProber{result: Metadata{Width: 1, Height: 1}}
	f := New(10, kv, prober, time.Hour, nil)

	m, err := f.Fetch(context.Background(), "dog.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != seeded {
		t.Fatalf("expected the L2 entry, got %+v", m)
	}
	if atomic.LoadInt32(&prober.calls) != 0 {
		t.Fatalf("expected an L2 hit to never reach L3, got %d calls", prober.calls)
	}
}

func TestFetchTreatsExpiredL2EntryAsMiss(t *testing.T) {
	kv := newMemKV()
	stale := Metadata{Width: 10, Height: 10}
	body, _ := json.Marshal(stale)
	entry := cacheEntryFor(body, time.Hour)
	entry.Meta.Timestamp = time.Now().Add(-2 * time.Hour) // older than the 1h L2 TTL
	if err := kv.Put(context.Background(), "metadata:stale.png", entry); err != nil {
		t.Fatalf("seed expired L2: %v", err)
	}

	prober := &countingProber{result: Metadata{Width: 99, Height: 99, Source: "fresh"}}
	f := New(10, kv, prober, time.Hour, nil)

	m, err := f.Fetch(context.Background(), "stale.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Width != 99 {
		t.Fatalf("expected an expired L2 entry to fall through to L3, got %+v", m)
	}
	if atomic.LoadInt32(&prober.calls) != 1 {
		t.Fatalf("expected exactly one L3 probe after the L2 miss, got %d", prober.calls)
	}
}

func TestFetchCoalescesConcurrentCallsForTheSamePath(t *testing.T) {
	prober := &countingProber{
		result: Metadata{Width: 500, Height: 500, Source: "origin"},
		block:  make(chan struct{}),
	}
	prober.probeOn.Add(1)
	f := New(10, newMemKV(), prober, time.Hour, nil)

	const n = 8
	results := make([]Metadata, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.Fetch(context.Background(), "shared.jpg")
		}(i)
	}

	prober.probeOn.Wait() // at least one caller has entered the single in-flight probe
	close(prober.block)   // release it; every coalesced caller should get the same result
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, err)
		}
		if results[i] != prober.result {
			t.Fatalf("caller %d: expected the coalesced result %+v, got %+v", i, prober.result, results[i])
		}
	}
	if calls := atomic.LoadInt32(&prober.calls); calls != 1 {
		t.Fatalf("expected singleflight to coalesce %d concurrent fetches into 1 probe, got %d", n, calls)
	}
}
