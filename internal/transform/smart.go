package transform

import (
	"strconv"
	"strings"
)

// ParseAspect parses an "aspect" query value of the form "W:H" (e.g.
// "16:9") into its two components. ok is false for anything else,
// including a zero width or height.
func ParseAspect(v string) (w, h float64, ok bool) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, errW := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	h, errH := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// ParseFocal parses a "focal" query value of the form "x,y", each
// component a fraction in [0,1] of the source image's width/height.
func ParseFocal(v string) (x, y float64, ok bool) {
	parts := strings.SplitN(v, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errX != nil || errY != nil || x < 0 || x > 1 || y < 0 || y > 1 {
		return 0, 0, false
	}
	return x, y, true
}
