package detector

import (
	"github.com/danielloader/imgresize/internal/types"
)

// classCaps bounds the resolved width per device class: width is rounded
// up to the nearest 100px from viewport*dpr, then capped per class.
var classCaps = map[types.DeviceClass]int{
	types.DeviceHighEnd: 2500,
	types.DeviceMidRange: 1800,
	types.DeviceLowEnd:  1200,
}

// qualityByClassNetwork is the base quality picked for the device class /
// network quality pair, before the Save-Data override. Rows: device
// class, columns: network quality. The class/network axes and their
// extremes (high-end+fast -> best, low-end+slow -> worst) are the fixed
// points; the interior values are interpolated.
var qualityByClassNetwork = map[types.DeviceClass]map[types.NetworkQuality]int{
	types.DeviceHighEnd: {
		types.NetworkFast:   90,
		types.NetworkMedium: 80,
		types.NetworkSlow:   65,
	},
	types.DeviceMidRange: {
		types.NetworkFast:   82,
		types.NetworkMedium: 75,
		types.NetworkSlow:   60,
	},
	types.DeviceLowEnd: {
		types.NetworkFast:   75,
		types.NetworkMedium: 65,
		types.NetworkSlow:   50,
	},
}

// Optimize applies detector-derived defaults onto base, filling in only
// fields the caller's query string didn't already set. Provenance is
// updated so downstream fingerprinting/debug headers can tell a
// user-chosen value from a detector-suggested one.
func (d *Detector) Optimize(info types.ClientInfo, base types.TransformOptions) types.TransformOptions {
	out := base.Clone()
	if out.Provenance == nil {
		out.Provenance = make(map[string]types.Provenance)
	}

	if !out.WasUserSet("format") && (out.Format == "" || out.Format == types.FormatAuto) {
		out.Format = pickFormat(info)
		out.Provenance["format"] = types.ProvenanceDetector
	}

	if !out.WasUserSet("quality") && out.Quality == 0 {
		out.Quality = pickQuality(info)
		out.Provenance["quality"] = types.ProvenanceDetector
	}

	if !out.WasUserSet("width") && out.Width == 0 && info.ViewportWidth > 0 {
		out.Width = pickWidth(info)
		out.Provenance["width"] = types.ProvenanceDetector
	}

	if info.SaveData {
		if !out.WasUserSet("quality") {
			out.Quality = 70
			out.Provenance["quality"] = types.ProvenanceDetector
		}
		if out.Extras == nil {
			out.Extras = make(map[string]string)
		}
		out.Extras["compression"] = "fast"
	}

	return out
}

// pickFormat implements the avif -> webp -> jpeg/png cascade, preferring
// the first format in info.PreferredFormats.
func pickFormat(info types.ClientInfo) types.Format {
	if len(info.PreferredFormats) > 0 {
		return info.PreferredFormats[0]
	}
	return types.FormatJPEG
}

func pickQuality(info types.ClientInfo) int {
	row, ok := qualityByClassNetwork[info.DeviceClass]
	if !ok {
		row = qualityByClassNetwork[types.DeviceMidRange]
	}
	if q, ok := row[info.NetworkQuality]; ok {
		return q
	}
	return row[types.NetworkMedium]
}

// pickWidth rounds viewport*dpr up to the nearest 100px, then caps it to
// the device class's maximum.
func pickWidth(info types.ClientInfo) int {
	dpr := info.DPR
	if dpr <= 0 {
		dpr = 1
	}
	raw := float64(info.ViewportWidth) * dpr
	rounded := roundUpTo100(raw)
	cap := classCaps[info.DeviceClass]
	if cap == 0 {
		cap = classCaps[types.DeviceMidRange]
	}
	if rounded > cap {
		return cap
	}
	return rounded
}

func roundUpTo100(v float64) int {
	n := int(v)
	if n%100 == 0 && float64(n) == v {
		return n
	}
	return (n/100 + 1) * 100
}
