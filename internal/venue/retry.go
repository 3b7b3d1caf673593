package venue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy is a bounded retry with exponential backoff.
type RetryPolicy struct {
	Attempts   int // total tries, >= 1
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetry is three tries starting at one second.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
}

// NewRetryPolicy builds a policy from configured retries (extra attempts
// after the first) and base delay.
func NewRetryPolicy(retries int, delay time.Duration) RetryPolicy {
	p := DefaultRetry()
	if retries >= 0 {
		p.Attempts = retries + 1
	}
	if delay > 0 {
		p.BaseDelay = delay
		p.MaxDelay = 4 * delay
	}
	return p
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err so Retry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// ErrAborted is returned by Retry when the stop channel attached with
// WithAbort closed before the next attempt.
var ErrAborted = errors.New("venue: aborted by stop request")

type abortKey struct{}

// WithAbort attaches a stop channel to ctx. Retry makes no further
// attempts once stop is closed, but the attempt in flight finishes.
func WithAbort(ctx context.Context, stop <-chan struct{}) context.Context {
	return context.WithValue(ctx, abortKey{}, stop)
}

func abortChan(ctx context.Context) <-chan struct{} {
	stop, _ := ctx.Value(abortKey{}).(<-chan struct{})
	return stop
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Retry calls fn until it succeeds, returns a permanent error, the attempts
// are exhausted, or ctx is done. The attempt number starts at 0.
// Cancellation and the WithAbort stop channel are both checked at every
// retry boundary, including during the backoff wait.
func Retry(ctx context.Context, p RetryPolicy, fn func(attempt int) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	stop := abortChan(ctx)
	var lastErr error
	delay := p.BaseDelay
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			if closed(stop) {
				return fmt.Errorf("%w (last error: %v)", ErrAborted, lastErr)
			}
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			case <-stop:
				t.Stop()
				return fmt.Errorf("%w (last error: %v)", ErrAborted, lastErr)
			case <-t.C:
			}
			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
