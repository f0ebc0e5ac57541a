package retry

import (
	"context"
	"time"
)

// Backoff returns base doubled attempt-1 times, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d <<= 1
		if d > max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Sleep waits for d or until ctx is done. It reports whether the full delay elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Do runs fn up to attempts times, sleeping with Backoff between failures.
// It stops early when ctx ends and returns the last error.
func Do(ctx context.Context, attempts int, base, max time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts || !Sleep(ctx, Backoff(base, max, attempt)) {
			break
		}
	}
	return lastErr
}
