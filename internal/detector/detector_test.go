package detector

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/danielloader/imgresize/internal/types"
)

func newTestDetector() *Detector {
	return New(600, 1000, DefaultThresholds())
}

// TestDetectDeterministic checks detector determinism: for identical
// header sets, Detect must return identical ClientInfo.
func TestDetectDeterministic(t *testing.T) {
	d := newTestDetector()
	mk := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/p.jpg", nil)
		r.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh) Chrome/124")
		r.Header.Set("Accept", "image/avif,image/webp,*/*")
		r.Header.Set("Viewport-Width", "1200")
		r.Header.Set("DPR", "2")
		return r
	}

	a := d.Detect(mk())
	b := d.Detect(mk())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical ClientInfo for identical headers, got %+v vs %+v", a, b)
	}
}

// TestDetectExplicitAcceptTakesPrecedence ensures an explicit Accept header
// overrides the UA-based fallback lookup table.
func TestDetectExplicitAcceptTakesPrecedence(t *testing.T) {
	d := newTestDetector()
	r := httptest.NewRequest(http.MethodGet, "/p.jpg", nil)
	r.Header.Set("User-Agent", "SomeUnknownBrowser/1.0")
	r.Header.Set("Accept", "image/avif,image/webp")

	info := d.Detect(r)
	if !info.AcceptsAVIF || !info.AcceptsWebP {
		t.Fatalf("expected explicit Accept to grant both formats, got %+v", info)
	}
}

// TestDetectSaveDataForcesSlowNetwork covers the Save-Data precedence rule.
func TestDetectSaveDataForcesSlowNetwork(t *testing.T) {
	d := newTestDetector()
	r := httptest.NewRequest(http.MethodGet, "/p.jpg", nil)
	r.Header.Set("Save-Data", "on")
	r.Header.Set("ECT", "4g") // would be "fast" but for Save-Data

	info := d.Detect(r)
	if info.NetworkQuality != types.NetworkSlow {
		t.Fatalf("expected Save-Data to force slow network quality, got %v", info.NetworkQuality)
	}
}

// TestOptimizeAdaptiveFormatAndQuality covers Accept: avif,webp +
// Save-Data with no explicit format/quality, which picks avif at quality
// 70 with compression=fast.
func TestOptimizeAdaptiveFormatAndQuality(t *testing.T) {
	d := newTestDetector()
	r := httptest.NewRequest(http.MethodGet, "/p.jpg", nil)
	r.Header.Set("Accept", "image/avif,image/webp,*/*")
	r.Header.Set("Save-Data", "on")

	info := d.Detect(r)
	out := d.Optimize(info, types.TransformOptions{})

	if out.Format != types.FormatAVIF {
		t.Fatalf("expected avif format, got %v", out.Format)
	}
	if out.Quality != 70 {
		t.Fatalf("expected quality capped to 70 under Save-Data, got %d", out.Quality)
	}
	if out.Extras["compression"] != "fast" {
		t.Fatalf("expected compression=fast extra, got %+v", out.Extras)
	}
}

// TestOptimizeNeverOverridesUserValue covers the "user wins" rule: a
// user-supplied value is never overridden by a detector suggestion.
func TestOptimizeNeverOverridesUserValue(t *testing.T) {
	d := newTestDetector()
	r := httptest.NewRequest(http.MethodGet, "/p.jpg", nil)
	r.Header.Set("Accept", "image/avif,image/webp,*/*")

	info := d.Detect(r)
	base := types.TransformOptions{
		Format:     types.FormatPNG,
		Quality:    55,
		Provenance: map[string]types.Provenance{"format": types.ProvenanceUser, "quality": types.ProvenanceUser},
	}
	out := d.Optimize(info, base)

	if out.Format != types.FormatPNG || out.Quality != 55 {
		t.Fatalf("user-set values must survive Optimize unchanged, got format=%v quality=%d", out.Format, out.Quality)
	}
}

// TestOptimizeWidthRoundsUpAndCaps exercises "width = round-up-to-100 of
// viewport*dpr, capped per class" for a low-end device.
func TestOptimizeWidthRoundsUpAndCaps(t *testing.T) {
	info := types.ClientInfo{ViewportWidth: 1300, DPR: 2, DeviceClass: types.DeviceLowEnd}
	d := newTestDetector()
	out := d.Optimize(info, types.TransformOptions{})

	if out.Width != 1200 {
		t.Fatalf("expected width capped to the low-end class max (1200), got %d", out.Width)
	}
}

// TestCacheEvictsOldestOnOverflow covers the prune-to-75% rule.
func TestCacheEvictsOldestOnOverflow(t *testing.T) {
	c := NewCache(0, 4)
	for i := 0; i < 5; i++ {
		c.Put(uint64(i), types.ClientInfo{})
	}
	if got := c.Len(); got > 3 {
		t.Fatalf("expected cache pruned to 75%% of max size (3), got %d entries", got)
	}
}
