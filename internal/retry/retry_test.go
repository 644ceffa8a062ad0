package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoStopsAfterSuccess(t *testing.T) {
	var calls int
	err := Do(context.Background(), 5, 5*time.Millisecond, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v, want nil", err)
	}
	if calls != 1 {
		t.Fatalf("op ran %d times, want 1", calls)
	}
}

func TestDoRecoversFromTransientFailures(t *testing.T) {
	var calls int
	errNotReady := errors.New("connection refused")
	err := Do(context.Background(), 4, 5*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errNotReady
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v, want nil after recovery", err)
	}
	if calls != 3 {
		t.Fatalf("op ran %d times, want 3", calls)
	}
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	var calls int
	errDown := errors.New("store unreachable")
	err := Do(context.Background(), 3, 5*time.Millisecond, func() error {
		calls++
		return errDown
	})
	if !errors.Is(err, errDown) {
		t.Fatalf("Do returned %v, want wrapped errDown", err)
	}
	if calls != 3 {
		t.Fatalf("op ran %d times, want 3", calls)
	}
}

func TestDoHonorsPermanentErrors(t *testing.T) {
	var calls int
	errBadSchema := errors.New("schema mismatch")
	err := Do(context.Background(), 5, 5*time.Millisecond, func() error {
		calls++
		return Permanent(errBadSchema)
	})
	if !errors.Is(err, errBadSchema) {
		t.Fatalf("Do returned %v, want errBadSchema", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error should stop retries, op ran %d times", calls)
	}
}

func TestDoAbortsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, 10, 100*time.Millisecond, func() error {
		calls.Add(1)
		return errors.New("still down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do returned %v, want context.Canceled", err)
	}
	if c := calls.Load(); c > 3 {
		t.Fatalf("op ran %d times before cancel, want at most 3", c)
	}
}

func TestDoTreatsZeroAttemptsAsOne(t *testing.T) {
	var calls int
	if err := Do(context.Background(), 0, time.Millisecond, func() error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("Do returned %v, want nil", err)
	}
	if calls != 1 {
		t.Fatalf("op ran %d times, want 1", calls)
	}
}

func TestDoBacksOffBetweenAttempts(t *testing.T) {
	var stamps []time.Time
	err := Do(context.Background(), 3, 20*time.Millisecond, func() error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v, want nil", err)
	}

	// Jitter makes exact delays unpredictable; just require real gaps.
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 5*time.Millisecond {
			t.Errorf("gap %d = %v, want at least 5ms", i, gap)
		}
	}
}

func TestPermanentUnwraps(t *testing.T) {
	inner := errors.New("inner")
	if !errors.Is(Permanent(inner), inner) {
		t.Fatal("Permanent error should unwrap to the inner error")
	}
}
