package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/danielloader/imgresize/internal/errs"
)

// Breakers holds separate read-path and write-path circuit breaker
// instances, process-wide and guarded internally by gobreaker's own
// locking, wiring gobreaker.CircuitBreaker with a ReadyToTrip/
// OnStateChange pair.
type Breakers struct {
	Read  *gobreaker.CircuitBreaker
	Write *gobreaker.CircuitBreaker
}

// BreakerConfig carries the three named thresholds.
type BreakerConfig struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
	SuccessThreshold uint32
}

// NewBreakers builds the read and write breaker instances from cfg. The
// ReadyToTrip predicate implements the closed -> (F>=threshold) -> open
// transition; gobreaker itself implements the half-open timing and
// half-open -> closed/open transitions based on SuccessThreshold /
// ConsecutiveFailures.
func NewBreakers(cfg BreakerConfig, onStateChange func(name string, from, to gobreaker.State)) Breakers {
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.SuccessThreshold,
			Timeout:     cfg.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			OnStateChange: onStateChange,
		}
	}
	return Breakers{
		Read:  gobreaker.NewCircuitBreaker(settings("cache-read")),
		Write: gobreaker.NewCircuitBreaker(settings("cache-write")),
	}
}

// Execute runs op through breaker b, translating gobreaker's open-circuit
// sentinel into the canonical errs.KindCircuitOpen so callers never need to
// know about gobreaker directly.
func Execute[T any](b *gobreaker.CircuitBreaker, op func() (T, error)) (T, error) {
	var zero T
	res, err := b.Execute(func() (interface{}, error) {
		return op()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, errs.New(errs.KindCircuitOpen, err, "circuit breaker open")
		}
		return zero, err
	}
	return res.(T), nil
}

// ExecuteCtx is Execute's context-aware form, for operations that need
// cancellation propagated in.
func ExecuteCtx[T any](ctx context.Context, b *gobreaker.CircuitBreaker, op func(context.Context) (T, error)) (T, error) {
	return Execute(b, func() (T, error) { return op(ctx) })
}
