package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDo_Success(t *testing.T) {
	attempts := 0
	cfg := Config{MaxAttempts: 3, Backoff: Fixed(time.Second), Sleep: noSleep}

	err := Do(context.Background(), cfg, nil, func(ctx context.Context, attempt int) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_PermanentError(t *testing.T) {
	attempts := 0
	permanentErr := errors.New("permanent")
	cfg := Config{MaxAttempts: 3, Sleep: noSleep}

	classifier := func(err error) bool {
		return !errors.Is(err, permanentErr)
	}

	err := Do(context.Background(), cfg, classifier, func(ctx context.Context, attempt int) error {
		attempts++
		return permanentErr
	})

	if !errors.Is(err, permanentErr) {
		t.Errorf("Do() returned error = %v, want %v", err, permanentErr)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Errorf("Do() wrapped a permanent error in ExhaustedError")
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_Exhausted(t *testing.T) {
	attempts := 0
	var waits []time.Duration
	transient := errors.New("503 unavailable")
	cfg := Config{
		MaxAttempts: 4,
		Backoff:     Linear(2 * time.Second),
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}

	err := Do(context.Background(), cfg, nil, func(ctx context.Context, attempt int) error {
		attempts++
		return transient
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Do() error = %v, want *ExhaustedError", err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("ExhaustedError.Attempts = %d, want 4", exhausted.Attempts)
	}
	if !errors.Is(err, transient) {
		t.Errorf("Do() error does not wrap the last error")
	}
	if attempts != 4 {
		t.Errorf("Do() made %d attempts, want 4", attempts)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("slept %d times, want %d", len(waits), len(want))
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait[%d] = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	attempts := 0
	cfg := Config{MaxAttempts: 4, Backoff: Fixed(time.Minute), Sleep: noSleep}

	err := Do(context.Background(), cfg, nil, func(ctx context.Context, attempt int) error {
		attempts++
		if attempt == 1 {
			return errors.New("429 rate limit")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 2 {
		t.Errorf("Do() made %d attempts, want 2", attempts)
	}
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	cfg := Config{MaxAttempts: 3, Backoff: Fixed(time.Hour)}
	err := Do(ctx, cfg, nil, func(ctx context.Context, attempt int) error {
		attempts++
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestExponential(t *testing.T) {
	backoff := Exponential(2, 10*time.Second, 0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := backoff(tt.attempt); got != tt.want {
			t.Errorf("Exponential(2, 10s)(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_JitterBounds(t *testing.T) {
	backoff := Exponential(2, time.Minute, 0.3)
	base := 4 * time.Second
	low := time.Duration(float64(base) * 0.7)
	high := time.Duration(float64(base) * 1.3)

	for range 200 {
		got := backoff(3)
		if got < low || got > high {
			t.Fatalf("Exponential jittered wait = %v, want within [%v, %v]", got, low, high)
		}
	}
}
