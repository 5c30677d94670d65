// Package retry provides the fixed-schedule retry policy shared by the
// analysis, retrieval, and webhook calls.
package retry

import (
	"context"
	"time"
)

// Policy retries an operation up to MaxAttempts times with exponential
// backoff: BaseDelay after the first failure, doubling after each one.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Default is the schedule every external call in the pipeline uses:
// 3 attempts with 1s, 2s, 4s between them.
var Default = Policy{MaxAttempts: 3, BaseDelay: time.Second}

// Do runs fn until it succeeds or attempts are exhausted, sleeping between
// attempts. fn receives the 1-based attempt number. The last error is
// returned; if the context is cancelled during a backoff wait, the context
// error is returned instead.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if werr := sleep(ctx, delay); werr != nil {
			return werr
		}
		delay *= 2
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
