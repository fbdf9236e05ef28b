package retrieval

import (
	"context"
	"log"
	"time"
)

// retryAttempts is the total number of tries for transient operations.
const retryAttempts = 3

// retryDelay returns the wait before the given retry; the first retry
// comes quickly, later ones back off.
func retryDelay(attempt int) time.Duration {
	if attempt == 1 {
		return 250 * time.Millisecond
	}
	return 500 * time.Millisecond
}

// withRetry runs op up to attempts times, sleeping between tries.
// Cancellation of ctx ends the wait early and returns ctx's error.
func withRetry(ctx context.Context, attempts int, what string, op func() error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			log.Printf("Retrieval: retrying %s (attempt %d of %d): %v", what, attempt+1, attempts, err)
			select {
			case <-time.After(retryDelay(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}
