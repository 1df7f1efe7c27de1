package errors

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	RetryableErrors []ErrorCode
	// OnRetry is called before every new attempt with the 1-based number of the failed attempt.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		RetryableErrors: []ErrorCode{
			ErrCodeNetwork,
			ErrCodeRPC,
			ErrCodeTimeout,
			ErrCodeTransport,
			ErrCodeRateLimit,
		},
	}
}

// RetryFunc is a function that can be retried
type RetryFunc func() error

// RetryWithConfig retries fn with exponential backoff until it succeeds, fails with a
// non-retryable error, runs out of attempts or ctx is done.
func RetryWithConfig(ctx context.Context, fn RetryFunc, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = fn()
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(config.InitialDelay),
		retry.MaxDelay(config.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return isRetryableError(err, config.RetryableErrors)
		}),
		retry.OnRetry(func(n uint, err error) {
			if config.OnRetry != nil && int(n)+1 < attempts {
				config.OnRetry(int(n)+1, err)
			}
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !isRetryableError(lastErr, config.RetryableErrors) {
		return lastErr
	}

	return WrapChainError(
		lastErr,
		ErrCodeInternal,
		"",
		"maximum retry attempts exceeded",
	).WithContext("attempts", attempts)
}

// isRetryableError checks if an error is retryable based on configuration
func isRetryableError(err error, retryableCodes []ErrorCode) bool {
	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		for _, code := range retryableCodes {
			if chainErr.Code == code {
				return true
			}
		}
		return false
	}

	return IsRetryable(err)
}
