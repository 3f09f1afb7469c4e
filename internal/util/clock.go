package util

import (
	"context"
	"time"

	"github.com/dropbox/godropbox/time2"
)

// SleepContext waits for d on the given clock, returning early with the
// context error if ctx is cancelled. All protocol waits go through this so
// an in-flight polling loop can be aborted without leaking timers.
func SleepContext(ctx context.Context, clock time2.Clock, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
