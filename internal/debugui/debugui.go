// Package debugui stands in for the HTML debug-report renderer, an
// out-of-scope external collaborator this repo only interfaces with. It
// implements the narrow Reporter capability the orchestrator calls
// through; a production deployment swaps in its own HTML renderer behind
// the same interface.
package debugui

import (
	"net/http"
	"strconv"
)

// Reporter renders the human-facing debug report for /debug-report.
type Reporter interface {
	Render(w http.ResponseWriter, data ReportData)
}

// ReportData is everything a Reporter needs to describe the running
// configuration and recent request shape.
type ReportData struct {
	BypassThreshold int
	CacheTagPrefix  string
	OriginCount     int
	DerivativeCount int
}

// PlainTextReporter renders ReportData as plain text. It's the only
// Reporter this repo ships; a richer HTML report is the out-of-scope
// collaborator deferred to the platform.
type PlainTextReporter struct{}

func (PlainTextReporter) Render(w http.ResponseWriter, data ReportData) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("imgresize debug report\n"))
	writeLine(w, "bypass threshold", data.BypassThreshold)
	writeLine(w, "origins configured", data.OriginCount)
	writeLine(w, "derivatives configured", data.DerivativeCount)
	w.Write([]byte("cache tag prefix: " + data.CacheTagPrefix + "\n"))
}

func writeLine(w http.ResponseWriter, label string, n int) {
	w.Write([]byte(label + ": " + strconv.Itoa(n) + "\n"))
}
