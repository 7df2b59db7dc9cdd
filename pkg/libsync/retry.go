package libsync

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// RetryConfig controls retry behavior of idempotent requests.
type RetryConfig struct {
	MaxAttempts int           // maximum number of attempts
	InitialWait time.Duration // wait before first retry
	MaxWait     time.Duration // maximum wait between retries
	Multiplier  float64       // backoff multiplier
}

// DefaultRetryConfig returns the retry behavior used by the Client.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     30 * time.Second,
		Multiplier:  2.0,
	}
}

// Retryable returns true if the error should trigger a retry.
// Only transport failures are retried, authentication and decoding errors are not.
func Retryable(err error) bool {
	return err != nil && errors.Is(err, ErrTransport)
}

// WithRetry executes fn until it succeeds, returns a non-retryable error or the attempts are exhausted.
// The last error is returned as is.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, op string, fn func() (T, error)) (T, error) {
	var zero T
	wait := cfg.InitialWait
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if !Retryable(err) || attempt >= cfg.MaxAttempts {
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, &Error{Kind: ErrTransport, Message: op + " canceled", Cause: ctx.Err()}
		case <-time.After(wait):
		}

		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if cfg.MaxWait > 0 && wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}
}
