package embed

import (
	"context"
	"time"
)

// retryBackoff runs fn up to maxAttempts times with exponential backoff.
// Context cancellation aborts immediately with the context error.
func retryBackoff(ctx context.Context, maxAttempts int, initial time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := initial

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}
