// Package retry wraps an arbitrary asynchronous operation with
// standardized data/loading/error state, bounded retry with a configurable
// backoff strategy, and an optional fallback operation invoked only after
// every primary attempt has failed.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// Strategy selects how the delay between attempts grows.
type Strategy string

const (
	// StrategyFixed waits the same base delay between every attempt.
	StrategyFixed Strategy = "fixed"
	// StrategyExponential doubles the delay each attempt, capped at MaxDelay.
	StrategyExponential Strategy = "exponential"
)

const (
	defaultDelay    = time.Second
	defaultMaxDelay = 30 * time.Second
)

// ErrExhausted indicates the primary operation (and fallback, if any)
// failed on every attempt.
var ErrExhausted = errors.New("all attempts exhausted")

// Operation is a retryable unit of work.
type Operation[T any] func(ctx context.Context) (T, error)

// Config configures a Runner.
type Config[T any] struct {
	// InitialValue is the data value before any execution and after Reset.
	InitialValue T
	// Fallback, if set, runs once after all primary attempts fail.
	Fallback Operation[T]
	// OnSuccess fires on any success, primary or fallback.
	OnSuccess func(T)
	// OnError fires exactly once per Execute, with the primary error,
	// when both primary and fallback are exhausted.
	OnError func(error)
	// Attempts is the number of retries beyond the first try.
	Attempts int
	// Delay is the base wait between attempts. Defaults to one second.
	Delay time.Duration
	// Strategy defaults to StrategyFixed.
	Strategy Strategy
	// MaxDelay caps exponential growth. Defaults to 30 seconds.
	MaxDelay time.Duration
}

// State is a snapshot of a Runner's observable state. Callers inspect Err
// rather than catching anything: Execute never panics on operation failure.
type State[T any] struct {
	Data    T
	Loading bool
	Err     string
}

// Runner executes operations under one retry/fallback policy.
//
// Concurrent Execute calls are not serialized against each other: both run
// and whichever settles last wins the final state (last-write-wins on
// Data/Err). That matches the UI-bound contract this was built for; callers
// needing stricter ordering must serialize externally.
type Runner[T any] struct {
	mu      sync.Mutex
	cfg     Config[T]
	data    T
	loading bool
	errMsg  string
	lastOp  Operation[T]
}

// New creates a Runner with the given configuration.
func New[T any](cfg Config[T]) *Runner[T] {
	if cfg.Delay <= 0 {
		cfg.Delay = defaultDelay
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyFixed
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	return &Runner[T]{cfg: cfg, data: cfg.InitialValue}
}

// Execute runs op with the configured retry policy. Attempts are strictly
// sequential: attempt N+1 never starts before attempt N settles and the
// backoff delay elapses. On total primary failure the fallback (if any)
// runs once. On total failure the error is recorded in state, OnError
// fires once with the primary error, and the zero value is returned along
// with a wrapped ErrExhausted.
func (r *Runner[T]) Execute(ctx context.Context, op Operation[T]) (T, error) {
	var zero T

	r.mu.Lock()
	r.lastOp = op
	r.loading = true
	r.mu.Unlock()

	var primaryErr error
	for attempt := 0; attempt <= r.cfg.Attempts; attempt++ {
		if attempt > 0 {
			if err := r.wait(ctx, attempt-1); err != nil {
				r.fail(err.Error(), err)
				return zero, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			r.succeed(result)
			return result, nil
		}
		primaryErr = err
	}

	if r.cfg.Fallback != nil {
		result, err := r.cfg.Fallback(ctx)
		if err == nil {
			r.succeed(result)
			return result, nil
		}
		msg := fmt.Sprintf("operation failed after %d attempts: %v (fallback also failed: %v)",
			r.cfg.Attempts+1, primaryErr, err)
		r.fail(msg, primaryErr)
		return zero, fmt.Errorf("%w: %v", ErrExhausted, primaryErr)
	}

	msg := fmt.Sprintf("operation failed after %d attempts: %v", r.cfg.Attempts+1, primaryErr)
	r.fail(msg, primaryErr)
	return zero, fmt.Errorf("%w: %v", ErrExhausted, primaryErr)
}

// Retry re-invokes the most recently executed operation through Execute,
// with the full retry/fallback policy reapplied. It is a no-op returning
// the zero value when nothing has been executed yet.
func (r *Runner[T]) Retry(ctx context.Context) (T, error) {
	r.mu.Lock()
	op := r.lastOp
	r.mu.Unlock()

	if op == nil {
		var zero T
		return zero, nil
	}
	return r.Execute(ctx, op)
}

// Reset restores data to the initial value, clears loading and error
// state, and forgets the last executed operation.
func (r *Runner[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data = r.cfg.InitialValue
	r.loading = false
	r.errMsg = ""
	r.lastOp = nil
}

// State returns a snapshot of the runner's current state.
func (r *Runner[T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	return State[T]{Data: r.data, Loading: r.loading, Err: r.errMsg}
}

func (r *Runner[T]) succeed(result T) {
	r.mu.Lock()
	r.data = result
	r.errMsg = ""
	r.loading = false
	r.mu.Unlock()

	if r.cfg.OnSuccess != nil {
		r.cfg.OnSuccess(result)
	}
}

func (r *Runner[T]) fail(msg string, cause error) {
	r.mu.Lock()
	r.errMsg = msg
	r.loading = false
	r.mu.Unlock()

	if r.cfg.OnError != nil && cause != nil {
		r.cfg.OnError(cause)
	}
}

// wait sleeps for the backoff delay before retry number attempt,
// returning early if the context is canceled.
func (r *Runner[T]) wait(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.backoff(attempt)):
		return nil
	}
}

func (r *Runner[T]) backoff(attempt int) time.Duration {
	if r.cfg.Strategy == StrategyFixed {
		return r.cfg.Delay
	}

	d := float64(r.cfg.Delay) * math.Pow(2, float64(attempt))
	if d > float64(r.cfg.MaxDelay) {
		d = float64(r.cfg.MaxDelay)
	}
	return time.Duration(d)
}

// AuthenticatedRunner gates Execute behind a caller-supplied
// authentication check. When the check fails the runner resets and
// returns the zero value without running the operation at all; nothing is
// queued or deferred.
type AuthenticatedRunner[T any] struct {
	*Runner[T]
	authed func() bool
}

// NewAuthenticated wraps a Runner configuration with an auth guard.
func NewAuthenticated[T any](cfg Config[T], authed func() bool) *AuthenticatedRunner[T] {
	return &AuthenticatedRunner[T]{Runner: New(cfg), authed: authed}
}

func (a *AuthenticatedRunner[T]) Execute(ctx context.Context, op Operation[T]) (T, error) {
	if a.authed == nil || !a.authed() {
		a.Reset()
		var zero T
		return zero, nil
	}
	return a.Runner.Execute(ctx, op)
}

// Retry applies the same auth guard as Execute.
func (a *AuthenticatedRunner[T]) Retry(ctx context.Context) (T, error) {
	if a.authed == nil || !a.authed() {
		a.Reset()
		var zero T
		return zero, nil
	}
	return a.Runner.Retry(ctx)
}
