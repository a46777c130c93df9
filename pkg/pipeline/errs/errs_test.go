package errs

import (
	"errors"
	"testing"
)

func TestBlocked(t *testing.T) {
	err := Blocked("parish.example.org", BlockedRateLimit)
	if !errors.Is(err, ErrBlocked) {
		t.Error("Blocked() should wrap ErrBlocked")
	}
	if got := err.Error(); got == "" {
		t.Error("Blocked() should produce a non-empty message")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrServerError, true},
		{ErrTransportError, true},
		{ErrSerializationConflict, true},
		{ErrClientError, false},
		{ErrBlocked, false},
		{ErrCircuitOpen, false},
		{ErrCancelled, false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestAbortsDiocese(t *testing.T) {
	if !AbortsDiocese(ErrCancelled) {
		t.Error("AbortsDiocese(ErrCancelled) should be true")
	}
	if AbortsDiocese(ErrServerError) {
		t.Error("AbortsDiocese(ErrServerError) should be false")
	}
	if AbortsDiocese(ErrBlocked) {
		t.Error("AbortsDiocese(ErrBlocked) should be false")
	}
}
