// Package resilience implements bounded exponential backoff with jitter,
// a circuit breaker per read/write path, and fallback composition with a
// sliding failure-window short-circuit.
//
// Retry wires github.com/cenkalti/backoff's ExponentialBackOff, setting its
// InitialInterval and MaxInterval from the Retrier's fields and keeping the
// library's default randomization factor and multiplier.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// terminalError marks an error as non-retryable regardless of what Retrier
// would otherwise do: used for semantic "advance, don't retry" failures
// like a 404 from one origin in a multi-origin fallthrough.
type terminalError struct{ err error }

func (t *terminalError) Error() string { return t.err.Error() }
func (t *terminalError) Unwrap() error { return t.err }

// Terminal wraps err so Retrier.Do stops immediately instead of retrying.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// Retrier retries a bounded number of times with exponential backoff and
// jitter.
type Retrier struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// NewRetrier builds a Retrier from its three tuning knobs.
func NewRetrier(maxAttempts int, initialDelay, maxDelay time.Duration) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if initialDelay <= 0 {
		initialDelay = 100 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &Retrier{MaxAttempts: maxAttempts, InitialDelay: initialDelay, MaxDelay: maxDelay}
}

// Do runs op, retrying on any error that isn't wrapped with Terminal, up to
// MaxAttempts, using cenkalti/backoff's ExponentialBackOff for the
// delay/jitter schedule.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.InitialDelay
	bo.MaxInterval = r.MaxDelay
	bo.MaxElapsedTime = 0 // bounded by attempt count below, not wall clock

	var lastErr error
	attempts := 0
	for {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var term *terminalError
		if errors.As(err, &term) {
			return term.err
		}
		if attempts >= r.MaxAttempts {
			return lastErr
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
