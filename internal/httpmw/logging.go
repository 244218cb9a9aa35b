// Package httpmw holds small http.Handler wrappers shared by the
// entrypoint.
package httpmw

import (
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging returns an http.Handler that logs every request at debug level,
// including the cache outcome the orchestrator sets on X-Cache so a tail
// of the logs shows hit/miss ratio alongside status and latency.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status,
			"cache", rec.Header().Get("X-Cache"), "duration", time.Since(start))
	})
}
