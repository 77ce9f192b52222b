// Package backoff wraps unreliable operations with an adaptive exponential
// delay that grows on failure and shrinks again after a run of successes.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"birdnest/internal/metrics"
)

// ErrMaxFailsReached matches any *MaxFailsReachedError via errors.Is.
var ErrMaxFailsReached = errors.New("maximum number of consecutive failures reached")

// MaxFailsReachedError is returned instead of the operation's own error once
// the configured number of consecutive failures is hit.
type MaxFailsReachedError struct {
	Operation string
	MaxFails  int
	Err       error
}

func (e *MaxFailsReachedError) Error() string {
	return fmt.Sprintf("%s: maximum number of fails (%d) reached: %v", e.Operation, e.MaxFails, e.Err)
}

func (e *MaxFailsReachedError) Unwrap() error { return e.Err }

func (e *MaxFailsReachedError) Is(target error) bool { return target == ErrMaxFailsReached }

// IsMaxFailsReached reports whether err carries a MaxFailsReachedError.
func IsMaxFailsReached(err error) bool {
	return errors.Is(err, ErrMaxFailsReached)
}

// Options tunes an Executor. MaxDelay and MaxFails of 0 mean unbounded;
// DecreaseThreshold of 0 never shrinks the delay.
type Options struct {
	InitialDelay      time.Duration
	IncreaseFactor    float64
	DecreaseFactor    float64
	DecreaseThreshold int
	MaxDelay          time.Duration
	MaxFails          int
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		InitialDelay:      500 * time.Millisecond,
		IncreaseFactor:    1.5,
		DecreaseFactor:    1.25,
		DecreaseThreshold: 10,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Executor holds the retry state of one wrapped operation. It is safe for
// concurrent use; concurrent callers share the delay and counters.
type Executor struct {
	name  string
	opts  Options
	sleep SleepFunc
	log   *slog.Logger

	mu        sync.Mutex
	delay     time.Duration
	successes int
	failures  int
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleep replaces the wait between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) { e.sleep = fn }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// New creates an Executor named after the operation it wraps.
func New(name string, opts Options, options ...Option) *Executor {
	if opts.IncreaseFactor <= 0 {
		opts.IncreaseFactor = 1.5
	}
	if opts.DecreaseFactor <= 0 {
		opts.DecreaseFactor = 1.25
	}
	e := &Executor{name: name, opts: opts, sleep: Sleep, log: slog.Default()}
	for _, o := range options {
		o(e)
	}
	metrics.BackoffDelay.WithLabelValues(name).Set(0)
	return e
}

// Name returns the operation name.
func (e *Executor) Name() string { return e.name }

// Delay returns the wait applied before the next call.
func (e *Executor) Delay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delay
}

// Failures returns the number of consecutive failures.
func (e *Executor) Failures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures
}

// Successes returns the number of consecutive successes since the last
// failure or delay reduction.
func (e *Executor) Successes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.successes
}

// Do waits for the current delay, runs fn and updates the retry state from
// its outcome. A context cancelled during the wait returns ctx.Err() without
// running fn or counting a failure.
func (e *Executor) Do(ctx context.Context, fn func(context.Context) error) error {
	if d := e.Delay(); d > 0 {
		e.log.Debug("delaying call", "operation", e.name, "delay", d)
		if err := e.sleep(ctx, d); err != nil {
			return err
		}
	}

	err := fn(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		e.onSuccess()
		return nil
	}
	return e.onFailure(err)
}

// onSuccess must be called with mu held.
func (e *Executor) onSuccess() {
	e.failures = 0
	e.successes++
	if e.opts.DecreaseThreshold > 0 && e.successes >= e.opts.DecreaseThreshold && e.delay > e.opts.InitialDelay {
		ms := float64(e.delay) / float64(time.Millisecond)
		e.delay = time.Duration(math.Round(ms/e.opts.DecreaseFactor)) * time.Millisecond
		e.successes = 0
		e.log.Debug("reduced delay", "operation", e.name, "delay", e.delay)
		metrics.BackoffDelay.WithLabelValues(e.name).Set(e.delay.Seconds())
	}
}

// onFailure must be called with mu held.
func (e *Executor) onFailure(err error) error {
	e.successes = 0
	e.failures++
	next := float64(e.opts.InitialDelay) * math.Pow(e.opts.IncreaseFactor, float64(e.failures))
	if e.opts.MaxDelay > 0 {
		next = math.Min(float64(e.opts.MaxDelay), next)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which overflows on conversion.
	if next >= float64(math.MaxInt64) {
		e.delay = time.Duration(math.MaxInt64)
	} else {
		e.delay = time.Duration(next)
	}
	metrics.BackoffDelay.WithLabelValues(e.name).Set(e.delay.Seconds())
	e.log.Debug("call failed", "operation", e.name, "failures", e.failures, "delay", e.delay, "err", err)

	if e.opts.MaxFails > 0 && e.failures >= e.opts.MaxFails {
		e.log.Info("max fails reached", "operation", e.name, "max_fails", e.opts.MaxFails)
		return &MaxFailsReachedError{Operation: e.name, MaxFails: e.opts.MaxFails, Err: err}
	}
	return err
}

// Call runs fn through e and returns its value.
func Call[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
