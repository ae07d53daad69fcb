package util

import (
	"context"
	"errors"
	"time"
)

// MaxBackoff caps the delay between two attempts.
const MaxBackoff = time.Minute

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Retry returns the wrapped error
// as soon as fn produces it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn up to maxAttempts times, doubling the delay after each
// failure starting from baseDelay and capped at MaxBackoff. It returns nil
// on the first success, the unwrapped error of a Permanent failure, or the
// last error once attempts run out. A cancelled context stops it before
// the next attempt.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := baseDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= maxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, MaxBackoff)
	}
}
