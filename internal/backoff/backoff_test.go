package backoff

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type recordingSleep struct{ waits []time.Duration }

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func newTestExecutor(opts Options) (*Executor, *recordingSleep) {
	rs := &recordingSleep{}
	return New("test", opts, WithSleep(rs.sleep)), rs
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestDelayGrowsWithFailures(t *testing.T) {
	e, rs := newTestExecutor(DefaultOptions())
	ctx := context.Background()
	for f := 1; f <= 4; f++ {
		if err := e.Do(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("failure %d: expected original error, got %v", f, err)
		}
		want := time.Duration(float64(500*time.Millisecond) * math.Pow(1.5, float64(f)))
		if got := e.Delay(); got != want {
			t.Fatalf("after %d failures delay = %v, want %v", f, got, want)
		}
		if e.Failures() != f {
			t.Fatalf("failures = %d, want %d", e.Failures(), f)
		}
	}
	// First call ran without a delay, the rest waited for the previous delay.
	if len(rs.waits) != 3 || rs.waits[0] != 750*time.Millisecond {
		t.Fatalf("unexpected waits: %v", rs.waits)
	}
}

func TestDelayCappedByMaxDelay(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDelay = time.Second
	e, _ := newTestExecutor(opts)
	for i := 0; i < 5; i++ {
		_ = e.Do(context.Background(), fail)
	}
	if got := e.Delay(); got != time.Second {
		t.Fatalf("delay = %v, want capped 1s", got)
	}
}

func TestUnboundedDelaySaturates(t *testing.T) {
	e, _ := newTestExecutor(DefaultOptions())
	var prev time.Duration
	for f := 1; f <= 80; f++ {
		_ = e.Do(context.Background(), fail)
		got := e.Delay()
		if got <= 0 {
			t.Fatalf("after %d failures delay = %v, want positive", f, got)
		}
		if got < prev {
			t.Fatalf("after %d failures delay shrank from %v to %v", f, prev, got)
		}
		prev = got
	}
	if prev != time.Duration(math.MaxInt64) {
		t.Fatalf("delay = %v, want saturated at max duration", prev)
	}
}

func TestSuccessesReduceDelayOnce(t *testing.T) {
	opts := DefaultOptions()
	opts.DecreaseThreshold = 3
	e, _ := newTestExecutor(opts)
	ctx := context.Background()
	_ = e.Do(ctx, fail)
	_ = e.Do(ctx, fail) // 1125ms

	for i := 0; i < 2; i++ {
		if err := e.Do(ctx, succeed); err != nil {
			t.Fatalf("success returned %v", err)
		}
	}
	if e.Delay() != 1125*time.Millisecond || e.Successes() != 2 {
		t.Fatalf("delay reduced early: %v successes=%d", e.Delay(), e.Successes())
	}
	_ = e.Do(ctx, succeed)
	if got := e.Delay(); got != 900*time.Millisecond {
		t.Fatalf("delay = %v, want 900ms", got)
	}
	if e.Successes() != 0 {
		t.Fatalf("successes = %d, want reset to 0", e.Successes())
	}
	if e.Failures() != 0 {
		t.Fatalf("failures = %d, want 0", e.Failures())
	}
}

func TestDecreaseRoundsToMilliseconds(t *testing.T) {
	opts := DefaultOptions()
	opts.DecreaseThreshold = 1
	opts.DecreaseFactor = 1.3
	e, _ := newTestExecutor(opts)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = e.Do(ctx, fail) // 1687.5ms
	}
	_ = e.Do(ctx, succeed)
	if got := e.Delay(); got != 1298*time.Millisecond {
		t.Fatalf("delay = %v, want 1298ms", got)
	}
}

func TestNoDecreaseAtOrBelowInitialDelay(t *testing.T) {
	opts := DefaultOptions()
	opts.DecreaseThreshold = 1
	opts.InitialDelay = time.Second
	opts.IncreaseFactor = 1
	e, _ := newTestExecutor(opts)
	ctx := context.Background()
	_ = e.Do(ctx, fail)
	for i := 0; i < 5; i++ {
		_ = e.Do(ctx, succeed)
	}
	if got := e.Delay(); got != time.Second {
		t.Fatalf("delay = %v, want 1s", got)
	}
}

func TestFailureResetsSuccesses(t *testing.T) {
	e, _ := newTestExecutor(DefaultOptions())
	ctx := context.Background()
	_ = e.Do(ctx, succeed)
	_ = e.Do(ctx, succeed)
	_ = e.Do(ctx, fail)
	if e.Successes() != 0 || e.Failures() != 1 {
		t.Fatalf("successes=%d failures=%d", e.Successes(), e.Failures())
	}
}

func TestMaxFailsReached(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxFails = 3
	e, _ := newTestExecutor(opts)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := e.Do(ctx, fail); IsMaxFailsReached(err) {
			t.Fatalf("max fails reached early at %d", i+1)
		}
	}
	err := e.Do(ctx, fail)
	if !IsMaxFailsReached(err) {
		t.Fatalf("expected max fails error, got %v", err)
	}
	var mf *MaxFailsReachedError
	if !errors.As(err, &mf) || mf.MaxFails != 3 || mf.Operation != "test" {
		t.Fatalf("unexpected error value: %#v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Fatalf("cause not reachable through %v", err)
	}
	// The delay is updated before the ceiling check.
	if got := e.Delay(); got != 1687500*time.Microsecond {
		t.Fatalf("delay = %v, want 1.6875s", got)
	}
}

func TestCancelledWaitSkipsCall(t *testing.T) {
	e := New("test", DefaultOptions())
	_ = e.Do(context.Background(), fail)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := e.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("operation ran after cancelled wait")
	}
	if e.Failures() != 1 {
		t.Fatalf("cancelled wait counted as failure: %d", e.Failures())
	}
}

func TestCall(t *testing.T) {
	e, _ := newTestExecutor(DefaultOptions())
	v, err := Call(context.Background(), e, func(context.Context) (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("Call = %d, %v", v, err)
	}
	v, err = Call(context.Background(), e, func(context.Context) (int, error) { return 7, errBoom })
	if !errors.Is(err, errBoom) || v != 0 {
		t.Fatalf("Call = %d, %v; want zero value and error", v, err)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep ignored cancellation")
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
}
