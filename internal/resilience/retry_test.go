package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientError(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		JitterFraction: 0,
	}
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("rate limited"), 429)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
	}
	permErr := errors.New("invalid credentials")
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return permErr
	})
	if !errors.Is(err, permErr) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		JitterFraction: 0,
	}
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return NewTransientError(errors.New("still failing"), 503)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{
		MaxAttempts:    10,
		InitialBackoff: 50 * time.Millisecond,
		JitterFraction: 0,
	}
	calls := 0
	err := Do(ctx, cfg, func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("transient"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancel stop, got %d", calls)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		JitterFraction: 0,
	}
	calls := 0
	val, err := DoVal(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", NewTransientError(errors.New("busy"), 429)
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "done" {
		t.Errorf("expected %q, got %q", "done", val)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		JitterFraction: 0,
	}
	var retries []int
	cfg.OnRetry = func(attempt int, err error) {
		retries = append(retries, attempt)
	}
	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		return NewTransientError(errors.New("flaky"), 502)
	})
	if len(retries) != 2 {
		t.Fatalf("expected 2 retry callbacks, got %d", len(retries))
	}
	if retries[0] != 1 || retries[1] != 2 {
		t.Errorf("unexpected retry attempts: %v", retries)
	}
}

func TestBackoffDelay_Caps(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     10,
		JitterFraction: 0,
	})
	d := backoffDelay(3, cfg)
	if d != 5*time.Second {
		t.Errorf("expected capped delay 5s, got %v", d)
	}
}

func TestBackoffDelay_Grows(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		Multiplier:     2,
		JitterFraction: 0,
	})
	if d := backoffDelay(0, cfg); d != 100*time.Millisecond {
		t.Errorf("attempt 0: expected 100ms, got %v", d)
	}
	if d := backoffDelay(2, cfg); d != 400*time.Millisecond {
		t.Errorf("attempt 2: expected 400ms, got %v", d)
	}
}
