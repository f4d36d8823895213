package internal

import (
	"errors"
	"testing"
)

func TestFailureState_LatchesAfterThreshold(t *testing.T) {
	s := NewFailureState(3)
	generic := errors.New("connection reset by peer")

	s.RecordFailure(generic)
	s.RecordFailure(generic)
	s.RecordSuccess()
	s.RecordFailure(generic)
	s.RecordFailure(generic)
	if s.IsFallbackOnly() {
		t.Fatal("breaker tripped before threshold consecutive failures")
	}

	s.RecordFailure(generic)
	if !s.IsFallbackOnly() {
		t.Fatal("breaker should trip after 3 consecutive failures")
	}

	s.RecordSuccess()
	if !s.IsFallbackOnly() {
		t.Error("success must not clear fallback-only mode")
	}
}

func TestFailureState_IPBlockLatchesImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"typed", &TranscriptError{Kind: KindIPBlocked, VideoID: "x"}},
		{"request blocked message", errors.New("RequestBlocked: YouTube is blocking requests from your IP")},
		{"429", errors.New("HTTP Error 429: Too Many Requests")},
		{"quota", errors.New("quota exceeded for this project")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewFailureState(10)
			s.RecordFailure(tt.err)
			if !s.IsFallbackOnly() {
				t.Errorf("IP block error %q should latch immediately", tt.err)
			}
		})
	}
}

func TestNewFailureState_DefaultThreshold(t *testing.T) {
	s := NewFailureState(0)
	for range DefaultFailureThreshold - 1 {
		s.RecordFailure(errors.New("boom"))
	}
	if s.IsFallbackOnly() {
		t.Fatal("tripped early")
	}
	s.RecordFailure(errors.New("boom"))
	if !s.IsFallbackOnly() {
		t.Error("expected trip at default threshold")
	}
}
