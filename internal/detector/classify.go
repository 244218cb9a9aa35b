package detector

import (
	"strings"

	"github.com/danielloader/imgresize/internal/types"
)

// Thresholds carries the configurable knobs for device-class
// classification.
type Thresholds struct {
	LowClassMax  int // device-class score <= this -> low-end
	HighClassMin int // device-class score >= this -> high-end
}

// DefaultThresholds is low<=30, high>=70.
func DefaultThresholds() Thresholds {
	return Thresholds{LowClassMax: 30, HighClassMin: 70}
}

// deviceClassScore combines memory and core count into a single 0-100
// score, weighting memory slightly higher since it more directly bounds
// decode buffer headroom for large images. 8GB+/8+cores saturates the
// scale; the curve itself is this repo's own synthesis, built to land on
// the declared low/high thresholds rather than any named formula.
func deviceClassScore(memoryGB float64, cores int) int {
	memScore := clamp(int(memoryGB/8*60), 0, 60)
	coreScore := clamp(cores*5, 0, 40)
	return clamp(memScore+coreScore, 0, 100)
}

func classifyDevice(score int, t Thresholds) types.DeviceClass {
	switch {
	case score <= t.LowClassMax:
		return types.DeviceLowEnd
	case score >= t.HighClassMin:
		return types.DeviceHighEnd
	default:
		return types.DeviceMidRange
	}
}

// classifyNetwork implements the network-quality precedence: Save-Data
// forces slow; else ECT; else RTT+Downlink.
func classifyNetwork(s rawSignals) types.NetworkQuality {
	if s.saveData {
		return types.NetworkSlow
	}
	switch s.ect {
	case "4g":
		return types.NetworkFast
	case "3g":
		return types.NetworkMedium
	case "2g", "slow-2g":
		return types.NetworkSlow
	}
	switch {
	case s.rttMs > 0 && s.rttMs < 100 && s.downlinkMbps > 5:
		return types.NetworkFast
	case s.rttMs > 500 || (s.downlinkMbps > 0 && s.downlinkMbps < 1):
		return types.NetworkSlow
	default:
		return types.NetworkMedium
	}
}

// browserFormatSupport is the fallback lookup table used when the Accept
// header doesn't explicitly list image/avif or image/webp, keyed by a
// coarse browser-family substring match on the User-Agent. Explicit
// Accept always takes precedence, so this table only matters for older
// or UA-hiding clients.
var browserFormatSupport = []struct {
	match      string
	webp, avif bool
}{
	{"chrome", true, true},
	{"edg", true, true},
	{"firefox", true, true},
	{"opr", true, true},
	{"safari", true, false}, // modern Safari: webp yes, avif inconsistent -> false is the safe default
}

func formatSupportFromUA(ua string) (webp, avif bool) {
	lower := strings.ToLower(ua)
	for _, row := range browserFormatSupport {
		if strings.Contains(lower, row.match) {
			return row.webp, row.avif
		}
	}
	return false, false
}

// formatSupportFromAccept parses the Accept header for explicit image
// format support. Explicit Accept always takes precedence.
func formatSupportFromAccept(accept string) (webp, avif, explicit bool) {
	if accept == "" {
		return false, false, false
	}
	lower := strings.ToLower(accept)
	webp = strings.Contains(lower, "image/webp")
	avif = strings.Contains(lower, "image/avif")
	explicit = webp || avif
	return
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
