package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/danielloader/imgresize/internal/errs"
)

func newTestBreakers(t *testing.T) Breakers {
	t.Helper()
	return NewBreakers(BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     50 * time.Millisecond,
		SuccessThreshold: 1,
	}, nil)
}

// TestBreakerOpensAfterThreshold exercises the closed -> open transition:
// once consecutive failures reach FailureThreshold, the breaker must
// refuse further calls without invoking the operation.
func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newTestBreakers(t)
	failing := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := Execute(b.Write, func() (struct{}, error) { return struct{}{}, failing })
		if err == nil {
			t.Fatalf("expected failure on attempt %d", i)
		}
	}

	calls := 0
	_, err := Execute(b.Write, func() (struct{}, error) {
		calls++
		return struct{}{}, nil
	})
	if err == nil {
		t.Fatal("expected circuit-open error once threshold is reached")
	}
	if calls != 0 {
		t.Fatalf("operation must not run while breaker is open, got %d calls", calls)
	}

	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindCircuitOpen {
		t.Fatalf("expected KindCircuitOpen, got %v", err)
	}
}

// TestBreakerHalfOpenRecoversOnSuccess exercises open -> half-open ->
// closed: after ResetTimeout elapses, a single success (SuccessThreshold=1)
// must close the breaker again.
func TestBreakerHalfOpenRecoversOnSuccess(t *testing.T) {
	b := newTestBreakers(t)
	failing := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, _ = Execute(b.Write, func() (struct{}, error) { return struct{}{}, failing })
	}

	time.Sleep(60 * time.Millisecond) // past ResetTimeout -> half-open

	calls := 0
	_, err := Execute(b.Write, func() (struct{}, error) {
		calls++
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("half-open trial should have been allowed through, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one trial call, got %d", calls)
	}

	// Breaker should now be closed: further calls run normally.
	calls = 0
	_, err = Execute(b.Write, func() (struct{}, error) {
		calls++
		return struct{}{}, nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected breaker closed and operating normally, err=%v calls=%d", err, calls)
	}
}

// TestBreakerReadAndWriteAreIndependent checks the separate instances for
// read and write paths: tripping Write must not affect Read.
func TestBreakerReadAndWriteAreIndependent(t *testing.T) {
	b := newTestBreakers(t)
	failing := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, _ = Execute(b.Write, func() (struct{}, error) { return struct{}{}, failing })
	}

	_, err := Execute(b.Read, func() (struct{}, error) { return struct{}{}, nil })
	if err != nil {
		t.Fatalf("read breaker must be unaffected by write breaker tripping, got %v", err)
	}
}
