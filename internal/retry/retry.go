// Package retry runs an operation under a bounded attempt policy.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/logging"
)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy is a fixed-delay retry policy.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the pause between attempts.
	Delay time.Duration

	// Sleep replaces the real pause. Nil sleeps on a timer.
	Sleep SleepFunc
}

// DefaultPolicy returns 5 attempts with a fixed 1s delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Delay: time.Second}
}

// Do calls fn until it succeeds, fails with an error retriable rejects, or
// the attempts are exhausted. It returns the number of attempts made and
// the last error. A nil retriable retries errors.ErrTransientWrite only.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, retriable func(error) bool) (int, error) {
	if retriable == nil {
		retriable = errors.IsRetriable
	}
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !retriable(err) {
			return attempt, err
		}

		if attempt < max {
			logging.Component("retry").Warn("retrying after transient error",
				"attempt", attempt,
				"max_attempts", max,
				"delay", p.Delay,
				"error", err)

			if err := sleep(ctx, p.Delay); err != nil {
				return attempt, err
			}
		}
	}

	return max, fmt.Errorf("gave up after %d attempts: %w", max, lastErr)
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
