package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_TransientError(t *testing.T) {
	err := NewTransientError(errors.New("rate limited"), 429)
	if !IsTransient(err) {
		t.Error("TransientError should be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("overloaded"), 503)
	wrapped := fmt.Errorf("outer: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_PermanentError(t *testing.T) {
	if IsTransient(errors.New("invalid api key")) {
		t.Error("plain error should not be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	cases := []struct {
		msg       string
		transient bool
	}{
		{"read tcp: connection reset by peer", true},
		{"write: broken pipe", true},
		{"dial tcp: i/o timeout", true},
		{"lookup smtp.example.com: no such host", true},
		{"smtp error: 421 service not available", true},
		{"smtp error: 550 mailbox unavailable", false},
		{"permission denied", false},
	}
	for _, c := range cases {
		if got := IsTransient(errors.New(c.msg)); got != c.transient {
			t.Errorf("IsTransient(%q) = %v, want %v", c.msg, got, c.transient)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)
	if !errors.Is(te, inner) {
		t.Error("TransientError should unwrap to inner error")
	}
	if te.StatusCode != 500 {
		t.Errorf("expected status 500, got %d", te.StatusCode)
	}
}
