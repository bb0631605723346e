package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     resetTimeout,
	})
}

func TestCircuit_OpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)
	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failing)
	}

	if got := cb.State(); got != CircuitOpen {
		t.Fatalf("expected open, got %s", got)
	}

	err := cb.Execute(context.Background(), failing)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuit_SuccessResetsFailures(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })

	failures, state := cb.Counters()
	if failures != 0 {
		t.Errorf("expected 0 consecutive failures, got %d", failures)
	}
	if state != CircuitClosed {
		t.Errorf("expected closed, got %s", state)
	}
}

func TestCircuit_HalfOpenAfterTimeout(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Second)

	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	if got := cb.State(); got != CircuitOpen {
		t.Fatalf("expected open, got %s", got)
	}

	// Advance past reset timeout.
	cb.nowFunc = func() time.Time { return now.Add(11 * time.Second) }
	if got := cb.State(); got != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", got)
	}

	// Successful probe closes the circuit.
	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cb.State(); got != CircuitClosed {
		t.Errorf("expected closed after probe, got %s", got)
	}
}

func TestCircuit_HalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(1, 10*time.Second)

	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })

	cb.nowFunc = func() time.Time { return now.Add(11 * time.Second) }
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("probe failed") })

	_, state := cb.Counters()
	if state != CircuitOpen {
		t.Errorf("expected reopened circuit, got %s", state)
	}
}

func TestCircuit_Reset(t *testing.T) {
	cb := newTestBreaker(1, time.Minute)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })

	cb.Reset()
	if got := cb.State(); got != CircuitClosed {
		t.Errorf("expected closed after reset, got %s", got)
	}
}

func TestCircuit_OnStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("unexpected transitions: %v", transitions)
	}
}

func TestExecuteVal_PreservesValue(t *testing.T) {
	cb := newTestBreaker(5, time.Minute)
	val, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
}

func TestServiceBreakers_PerService(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	mailCB := sb.Get("mail")
	_ = mailCB.Execute(context.Background(), func(ctx context.Context) error { return errors.New("smtp down") })

	if got := sb.Get("mail").State(); got != CircuitOpen {
		t.Errorf("mail breaker should be open, got %s", got)
	}
	if got := sb.Get("anthropic").State(); got != CircuitClosed {
		t.Errorf("anthropic breaker should be closed, got %s", got)
	}

	states := sb.States()
	if len(states) != 2 {
		t.Errorf("expected 2 breakers, got %d", len(states))
	}
}
