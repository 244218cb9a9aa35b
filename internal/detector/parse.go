package detector

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/danielloader/imgresize/internal/types"
)

// rawSignals is every value parsed out of request headers, before
// classification. Kept separate from types.ClientInfo so classification
// logic reads like a pure function of these fields.
type rawSignals struct {
	userAgent string
	accept    string

	viewportWidth int
	dpr           float64
	saveData      bool

	ect          string
	rttMs        int
	downlinkMbps float64

	deviceMemoryGB float64
	hardwareCores  int
}

func parseHeaders(h http.Header) rawSignals {
	var s rawSignals
	s.userAgent = h.Get("User-Agent")
	s.accept = h.Get("Accept")

	s.viewportWidth = firstInt(h.Get("Viewport-Width"), h.Get("Sec-CH-Viewport-Width"))
	s.dpr = firstFloat(h.Get("DPR"), h.Get("Sec-CH-DPR"))
	if s.dpr <= 0 {
		s.dpr = 1
	}

	s.saveData = strings.EqualFold(strings.TrimSpace(h.Get("Save-Data")), "on")
	s.ect = strings.ToLower(strings.TrimSpace(h.Get("ECT")))
	s.rttMs = parseInt(h.Get("RTT"))
	s.downlinkMbps = parseFloat(h.Get("Downlink"))
	s.deviceMemoryGB = parseFloat(h.Get("Device-Memory"))
	s.hardwareCores = parseInt(h.Get("Hardware-Concurrency"))

	return s
}

func firstInt(vals ...string) int {
	for _, v := range vals {
		if n := parseInt(v); n > 0 {
			return n
		}
	}
	return 0
}

func firstFloat(vals ...string) float64 {
	for _, v := range vals {
		if f := parseFloat(v); f > 0 {
			return f
		}
	}
	return 0
}

func parseInt(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// deviceTypeFromUA classifies the coarse device type from the User-Agent
// string. This is a deliberately small substring table, not a full UA
// parser library: the detector only needs mobile/tablet/desktop/unknown,
// not full OS/browser version extraction (that's §4.5's separate format-
// support lookup, in classify.go).
func deviceTypeFromUA(ua string) types.DeviceType {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		return types.DeviceTablet
	case strings.Contains(lower, "mobi") || strings.Contains(lower, "iphone") || strings.Contains(lower, "android"):
		return types.DeviceMobile
	case ua == "":
		return types.DeviceUnknown
	default:
		return types.DeviceDesktop
	}
}
