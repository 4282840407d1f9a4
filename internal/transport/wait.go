// internal/transport/wait.go
package transport

import (
	"context"
	"time"
)

// WaitAtLeast sleeps until minDelay has elapsed since last and returns the time slept.
// A zero last or non-positive minDelay returns immediately.
// Cancellation of ctx returns ctx.Err().
func WaitAtLeast(ctx context.Context, last time.Time, minDelay time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if last.IsZero() || minDelay <= 0 {
		return 0, nil
	}

	remaining := minDelay - time.Since(last)
	if remaining <= 0 {
		return 0, nil
	}

	start := time.Now()
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return time.Since(start), ctx.Err()
	case <-timer.C:
		return time.Since(start), nil
	}
}
