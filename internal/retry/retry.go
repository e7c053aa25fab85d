// Package retry provides the bounded fixed-delay retry combinator used by the
// stage runner for per-file external actions.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds the number of attempts and the pause between them.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Normalized clamps the policy to at least one attempt and a non-negative delay.
func (p Policy) Normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// after the current attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Do runs fn until it succeeds, returns a permanent error, or the policy's
// attempts are exhausted. The returned error is the last attempt's error with
// any Permanent marker removed. When ctx is cancelled during the wait between
// attempts, the context error is returned instead.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	return DoWithSleeper(ctx, policy, sleepContext, fn)
}

// DoWithSleeper is Do with an injectable wait function.
func DoWithSleeper(ctx context.Context, policy Policy, sleep Sleeper, fn func(ctx context.Context, attempt int) error) (int, error) {
	policy = policy.Normalized()
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return attempt, perm.err
		}
		if attempt == policy.Attempts {
			return attempt, lastErr
		}
		if err := sleep(ctx, policy.Delay); err != nil {
			return attempt, err
		}
	}
	return policy.Attempts, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
