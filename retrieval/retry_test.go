package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryDelaySchedule(t *testing.T) {
	if got := retryDelay(1); got != 250*time.Millisecond {
		t.Errorf("first retry delay = %v, want 250ms", got)
	}
	if got := retryDelay(2); got != 500*time.Millisecond {
		t.Errorf("second retry delay = %v, want 500ms", got)
	}
}

func TestWithRetryEventualSuccess(t *testing.T) {
	var calls int
	err := withRetry(context.Background(), retryAttempts, "test op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	opErr := errors.New("still broken")
	var calls int
	err := withRetry(context.Background(), retryAttempts, "test op", func() error {
		calls++
		return opErr
	})
	if !errors.Is(err, opErr) {
		t.Errorf("err = %v, want the operation error", err)
	}
	if calls != retryAttempts {
		t.Errorf("calls = %d, want %d", calls, retryAttempts)
	}
}

func TestWithRetryRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	go func() {
		// Cancel during the first backoff wait.
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := withRetry(ctx, retryAttempts, "test op", func() error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
