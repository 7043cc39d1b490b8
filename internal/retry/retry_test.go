package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	r := New(Config[int]{Delay: time.Millisecond})

	got, err := r.Execute(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}

	state := r.State()
	if state.Data != 42 || state.Err != "" || state.Loading {
		t.Errorf("Unexpected state: %+v", state)
	}
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	errorsSeen := 0
	r := New(Config[string]{
		Attempts: 3,
		Delay:    time.Millisecond,
		OnError:  func(error) { errorsSeen++ },
	})

	calls := 0
	got, err := r.Execute(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got != "ok" {
		t.Errorf("Expected ok, got %s", got)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if errorsSeen != 0 {
		t.Errorf("OnError must not fire when a retry succeeds, fired %d times", errorsSeen)
	}
}

func TestExecute_FallbackAfterPrimaryExhausted(t *testing.T) {
	primaryCalls := 0
	r := New(Config[string]{
		Attempts: 1,
		Delay:    time.Millisecond,
		Fallback: func(ctx context.Context) (string, error) {
			return "fallback", nil
		},
	})

	got, err := r.Execute(context.Background(), func(ctx context.Context) (string, error) {
		primaryCalls++
		return "", errors.New("always fails")
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got != "fallback" {
		t.Errorf("Expected fallback value, got %s", got)
	}
	if primaryCalls != 2 {
		t.Errorf("Expected 2 primary attempts, got %d", primaryCalls)
	}

	if state := r.State(); state.Data != "fallback" || state.Err != "" {
		t.Errorf("Unexpected state after fallback success: %+v", state)
	}
}

func TestExecute_BothExhausted(t *testing.T) {
	var onErrorCalls int
	var reported error
	r := New(Config[int]{
		Attempts: 2,
		Delay:    time.Millisecond,
		Fallback: func(ctx context.Context) (int, error) {
			return 0, errors.New("fallback down")
		},
		OnError: func(err error) {
			onErrorCalls++
			reported = err
		},
	})

	primaryErr := errors.New("primary down")
	got, err := r.Execute(context.Background(), func(ctx context.Context) (int, error) {
		return 0, primaryErr
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Expected ErrExhausted, got %v", err)
	}
	if got != 0 {
		t.Errorf("Expected zero value, got %d", got)
	}

	state := r.State()
	if state.Err == "" {
		t.Error("Expected non-empty error state")
	}
	if onErrorCalls != 1 {
		t.Errorf("Expected OnError exactly once, got %d", onErrorCalls)
	}
	if reported != primaryErr {
		t.Errorf("Expected OnError to receive the primary error, got %v", reported)
	}
}

func TestExecute_OnSuccessFires(t *testing.T) {
	var received int
	r := New(Config[int]{
		Delay:     time.Millisecond,
		OnSuccess: func(v int) { received = v },
	})

	if _, err := r.Execute(context.Background(), func(ctx context.Context) (int, error) {
		return 7, nil
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if received != 7 {
		t.Errorf("Expected OnSuccess with 7, got %d", received)
	}
}

func TestExecute_SuccessClearsPriorError(t *testing.T) {
	r := New(Config[int]{Delay: time.Millisecond})
	ctx := context.Background()

	if _, err := r.Execute(ctx, func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	}); err == nil {
		t.Fatal("Expected failure")
	}
	if state := r.State(); state.Err == "" {
		t.Fatal("Expected error state after failure")
	}

	if _, err := r.Execute(ctx, func(ctx context.Context) (int, error) {
		return 9, nil
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if state := r.State(); state.Err != "" || state.Data != 9 {
		t.Errorf("Expected cleared error state, got %+v", state)
	}
}

func TestReset(t *testing.T) {
	r := New(Config[int]{InitialValue: -1, Delay: time.Millisecond})

	if _, err := r.Execute(context.Background(), func(ctx context.Context) (int, error) {
		return 5, nil
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	r.Reset()

	state := r.State()
	if state.Data != -1 || state.Err != "" || state.Loading {
		t.Errorf("Expected initial state after reset, got %+v", state)
	}

	// Last operation is forgotten: Retry is a no-op
	got, err := r.Retry(context.Background())
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if got != 0 {
		t.Errorf("Expected zero value from no-op retry, got %d", got)
	}
}

func TestRetry_ReinvokesLastOperation(t *testing.T) {
	r := New(Config[int]{Delay: time.Millisecond})
	ctx := context.Background()

	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("first run fails")
		}
		return calls, nil
	}

	if _, err := r.Execute(ctx, op); err == nil {
		t.Fatal("Expected first run to fail")
	}

	got, err := r.Retry(ctx)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if got != 2 {
		t.Errorf("Expected retry to re-run the operation, got %d", got)
	}
}

func TestRetry_NoOpWithoutExecute(t *testing.T) {
	r := New(Config[string]{Delay: time.Millisecond})

	got, err := r.Retry(context.Background())
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if got != "" {
		t.Errorf("Expected zero value, got %q", got)
	}
}

func TestExecute_ContextCancellationAbortsBackoff(t *testing.T) {
	r := New(Config[int]{Attempts: 5, Delay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Execute(ctx, func(ctx context.Context) (int, error) {
		return 0, errors.New("fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestBackoff_Strategies(t *testing.T) {
	fixed := New(Config[int]{Delay: 100 * time.Millisecond, Strategy: StrategyFixed})
	for attempt := 0; attempt < 4; attempt++ {
		if got := fixed.backoff(attempt); got != 100*time.Millisecond {
			t.Errorf("Fixed attempt %d: expected 100ms, got %v", attempt, got)
		}
	}

	exp := New(Config[int]{
		Delay:    100 * time.Millisecond,
		Strategy: StrategyExponential,
		MaxDelay: 500 * time.Millisecond,
	})
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond, // capped
		500 * time.Millisecond,
	}
	for attempt, expected := range want {
		if got := exp.backoff(attempt); got != expected {
			t.Errorf("Exponential attempt %d: expected %v, got %v", attempt, expected, got)
		}
	}
}

func TestAuthenticatedRunner_GatesExecution(t *testing.T) {
	authed := false
	ran := false
	r := NewAuthenticated(Config[int]{InitialValue: -1, Delay: time.Millisecond}, func() bool {
		return authed
	})

	op := func(ctx context.Context) (int, error) {
		ran = true
		return 11, nil
	}

	got, err := r.Execute(context.Background(), op)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got != 0 {
		t.Errorf("Expected zero value when unauthenticated, got %d", got)
	}
	if ran {
		t.Error("Operation must not run when unauthenticated")
	}
	if state := r.State(); state.Data != -1 {
		t.Errorf("Expected reset state when unauthenticated, got %+v", state)
	}

	authed = true
	got, err = r.Execute(context.Background(), op)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got != 11 || !ran {
		t.Errorf("Expected operation to run when authenticated, got %d", got)
	}
}

func TestExecute_ErrorMessageComposition(t *testing.T) {
	r := New(Config[int]{Attempts: 1, Delay: time.Millisecond})

	if _, err := r.Execute(context.Background(), func(ctx context.Context) (int, error) {
		return 0, fmt.Errorf("connection refused")
	}); err == nil {
		t.Fatal("Expected failure")
	}

	state := r.State()
	want := "operation failed after 2 attempts: connection refused"
	if state.Err != want {
		t.Errorf("Expected %q, got %q", want, state.Err)
	}
}
