package detector

import (
	"net/http"
	"time"

	"github.com/danielloader/imgresize/internal/types"
)

// Detector implements the Detect/Optimize contract, backed by the
// process-local Cache.
type Detector struct {
	Cache      *Cache
	Thresholds Thresholds
}

// New builds a Detector with the given TTL/size for its result cache and
// classification thresholds (both from config.File.Detection).
func New(ttlSeconds, maxSize int, thresholds Thresholds) *Detector {
	return &Detector{
		Cache:      NewCache(time.Duration(ttlSeconds)*time.Second, maxSize),
		Thresholds: thresholds,
	}
}

// Detect returns the ClientInfo for r, consulting the cache first. Two
// requests with identical relevant headers always produce identical
// results, because Detect is a pure function of those headers plus the
// (process-wide, but read-only during a request) Thresholds.
func (d *Detector) Detect(r *http.Request) types.ClientInfo {
	key := HashHeaders(r.Header)
	if info, ok := d.Cache.Get(key); ok {
		return info
	}
	info := d.classify(r.Header)
	d.Cache.Put(key, info)
	return info
}

func (d *Detector) classify(h http.Header) types.ClientInfo {
	signals := parseHeaders(h)

	webpAccept, avifAccept, explicit := formatSupportFromAccept(signals.accept)
	if !explicit {
		webpAccept, avifAccept = formatSupportFromUA(signals.userAgent)
	}

	score := deviceClassScore(signals.deviceMemoryGB, signals.hardwareCores)
	class := classifyDevice(score, d.Thresholds)

	preferred := preferredFormats(avifAccept, webpAccept)

	return types.ClientInfo{
		ViewportWidth:        signals.viewportWidth,
		DPR:                  signals.dpr,
		SaveData:             signals.saveData,
		AcceptsWebP:          webpAccept,
		AcceptsAVIF:          avifAccept,
		DeviceType:           deviceTypeFromUA(signals.userAgent),
		NetworkQuality:       classifyNetwork(signals),
		PreferredFormats:     preferred,
		DeviceClass:          class,
		MemoryConstrained:    signals.deviceMemoryGB > 0 && signals.deviceMemoryGB < 2,
		ProcessorConstrained: signals.hardwareCores > 0 && signals.hardwareCores <= 2,
	}
}

// preferredFormats orders candidate output formats avif > webp > jpeg.
func preferredFormats(avif, webp bool) []types.Format {
	var out []types.Format
	if avif {
		out = append(out, types.FormatAVIF)
	}
	if webp {
		out = append(out, types.FormatWebP)
	}
	out = append(out, types.FormatJPEG)
	return out
}
