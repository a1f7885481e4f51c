package ubeapi

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

// permanentError marks a failure that retrying cannot fix (4xx, decode errors).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// retryWithBackoff runs fn up to maxRetries+1 times. Delays grow as
// initialDelay * 2^attempt with ±25% jitter. Permanent errors stop the loop
// and are returned unwrapped.
func retryWithBackoff(ctx context.Context, maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var permErr *permanentError
		if errors.As(err, &permErr) {
			return permErr.Unwrap()
		}
		if attempt == maxRetries {
			break
		}

		select {
		case <-time.After(backoffDelay(initialDelay, attempt)):
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		}
	}

	return lastErr
}

func backoffDelay(initial time.Duration, attempt int) time.Duration {
	delay := initial << attempt
	half := int64(delay) / 2
	if half <= 0 {
		return delay
	}
	jitter, err := rand.Int(rand.Reader, big.NewInt(half))
	if err != nil {
		return delay
	}
	return delay - delay/4 + time.Duration(jitter.Int64())
}
