// Package clock provides helpers for time-related operations.
package clock

import (
	"context"
	"time"
)

// SleepWithContext waits for the duration or returns early if the context is canceled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Tick invokes fn every interval until the context is canceled. The first call
// happens after one interval, not immediately.
func Tick(ctx context.Context, interval time.Duration, fn func()) error {
	for {
		if err := SleepWithContext(ctx, interval); err != nil {
			return err
		}
		fn()
	}
}
