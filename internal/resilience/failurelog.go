package resilience

import (
	"sync"
	"time"

	"github.com/danielloader/imgresize/internal/errs"
)

// FailureLogEntry is one sliding-window record: a sliding 5-minute window
// of {timestamp, errorCode}.
type FailureLogEntry struct {
	Timestamp time.Time
	ErrorCode errs.Kind
}

// FailureLog is a process-wide, mutex-guarded sliding window. It drives
// the "go straight to fallback" behavior in ExecuteWithFallback when the
// window already holds >=5 entries.
type FailureLog struct {
	mu     sync.Mutex
	window time.Duration
	min    int
	events []FailureLogEntry
	now    func() time.Time
}

// NewFailureLog builds a FailureLog with a 5-minute window and a 5-entry
// adaptive-fallback threshold.
func NewFailureLog() *FailureLog {
	return &FailureLog{window: 5 * time.Minute, min: 5, now: time.Now}
}

// Record appends a failure and prunes anything older than the window.
func (f *FailureLog) Record(code errs.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	f.events = append(f.events, FailureLogEntry{Timestamp: now, ErrorCode: code})
	f.prune(now)
}

// ShouldBypassPrimary reports whether the window already holds >= the
// adaptive threshold: if the sliding failure window already contains >=5
// entries, skip primary and call fallback directly.
func (f *FailureLog) ShouldBypassPrimary() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prune(f.now())
	return len(f.events) >= f.min
}

// Reset clears the window, e.g. on config reload: global mutable caches
// get reset on reconfiguration.
func (f *FailureLog) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

func (f *FailureLog) prune(now time.Time) {
	cutoff := now.Add(-f.window)
	i := 0
	for ; i < len(f.events); i++ {
		if f.events[i].Timestamp.After(cutoff) {
			break
		}
	}
	f.events = f.events[i:]
}
