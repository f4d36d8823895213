package internal

import "sync"

// DefaultFailureThreshold is the number of consecutive acquisition failures
// that switches a run to fallback-only mode
const DefaultFailureThreshold = 3

// FailureState tracks consecutive transcript acquisition failures for a run.
// Once tripped it stays in fallback-only mode until a new FailureState is made.
type FailureState struct {
	mu           sync.Mutex
	threshold    int
	consecutive  int
	fallbackOnly bool
}

// NewFailureState creates a breaker that trips after threshold consecutive
// failures. A threshold below 1 uses DefaultFailureThreshold.
func NewFailureState(threshold int) *FailureState {
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}
	return &FailureState{threshold: threshold}
}

// RecordSuccess resets the consecutive failure counter. It never clears the latch.
func (s *FailureState) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutive = 0
}

// RecordFailure counts a failure. An IP block error latches immediately.
func (s *FailureState) RecordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutive++
	if s.consecutive >= s.threshold || ClassifyTranscriptError(err) == KindIPBlocked {
		s.fallbackOnly = true
	}
}

// IsFallbackOnly reports whether the primary transcript source is disabled
func (s *FailureState) IsFallbackOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallbackOnly
}
