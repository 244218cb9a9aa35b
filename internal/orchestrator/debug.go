package orchestrator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/danielloader/imgresize/internal/config"
	"github.com/danielloader/imgresize/internal/debugui"
	"github.com/danielloader/imgresize/internal/types"
)

// debugContext is everything AttachHeaders needs to emit the X-* debug
// header family: a static struct plus a fixed field list, not a
// reflective walk over TransformOptions.
type debugContext struct {
	Performance   time.Duration
	StorageSource string
	Opts          types.TransformOptions
	Client        types.ClientInfo
	Width, Height int
}

// debugFields is the static option-name -> stringifier table, replacing a
// dynamic reflection over option records. Only fields with debug-visible
// headers are listed; Extras pass through the transform primitive and are
// not separately surfaced here.
var debugFields = []struct {
	name   string
	render func(types.TransformOptions) string
}{
	{"width", func(o types.TransformOptions) string { return fmt.Sprintf("%d", o.Width) }},
	{"height", func(o types.TransformOptions) string { return fmt.Sprintf("%d", o.Height) }},
	{"quality", func(o types.TransformOptions) string { return fmt.Sprintf("%d", o.Quality) }},
	{"format", func(o types.TransformOptions) string { return string(o.Format) }},
	{"fit", func(o types.TransformOptions) string { return string(o.Fit) }},
	{"derivative", func(o types.TransformOptions) string { return o.Derivative }},
}

type debugReporter struct {
	report debugui.Reporter
}

func newDebugReporter() *debugReporter {
	return &debugReporter{report: debugui.PlainTextReporter{}}
}

// AttachHeaders writes the X-* debug header family, when the request
// opted into debug output.
func (d *debugReporter) AttachHeaders(w http.ResponseWriter, dc debugContext) {
	h := w.Header()
	h.Set("X-Storage-Source", dc.StorageSource)
	h.Set("X-Performance", dc.Performance.String())
	h.Set("X-Image-Width", fmt.Sprintf("%d", dc.Width))
	h.Set("X-Image-Height", fmt.Sprintf("%d", dc.Height))
	h.Set("X-Image-Format", string(dc.Opts.Format))
	h.Set("X-Image-Quality", fmt.Sprintf("%d", dc.Opts.Quality))
	h.Set("X-Device-Type", string(dc.Client.DeviceType))
	h.Set("X-Client-Network-Quality", string(dc.Client.NetworkQuality))
	h.Set("X-Client-Device-Class", string(dc.Client.DeviceClass))

	var b []byte
	for _, f := range debugFields {
		v := f.render(dc.Opts)
		if v == "" || v == "0" {
			continue
		}
		if len(b) > 0 {
			b = append(b, ',')
		}
		b = append(b, []byte(f.name+"="+v)...)
	}
	h.Set("X-Transform-Options", string(b))
}

// WriteReport renders the debug report through the debugui.Reporter
// capability, as plain text via debugui.PlainTextReporter; a real
// deployment swaps in its own HTML renderer behind the same interface.
func (d *debugReporter) WriteReport(w http.ResponseWriter, h *Handler) {
	d.report.Render(w, debugui.ReportData{
		BypassThreshold: h.Config.File.BypassThreshold(),
		CacheTagPrefix:  h.Config.File.CacheTagPrefix,
		OriginCount:     len(h.Config.File.Origins),
		DerivativeCount: len(h.Config.File.Derivatives),
	})
}

// WriteKVConfig renders the JSON debug endpoint.
func (d *debugReporter) WriteKVConfig(w http.ResponseWriter, cfg config.Config) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transformCacheKV": cfg.Env.TransformCacheKV,
		"metadataCacheKV":  cfg.Env.MetadataCacheKV,
		"configStoreKV":    cfg.Env.ConfigStoreKV,
		"bypassThreshold":  cfg.File.BypassThreshold(),
		"originCount":      len(cfg.File.Origins),
		"derivativeCount":  len(cfg.File.Derivatives),
	})
}
