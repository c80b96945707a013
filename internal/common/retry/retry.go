package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// maxDelay caps the exponential backoff.
const maxDelay = 30 * time.Second

// Policy describes how an operation is retried.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Retryable decides whether an error is transient. Nil means IsRetryableError.
	Retryable func(error) bool
	Logger    *slog.Logger
}

// IsRetryableError determines if an error is transient and worth retrying.
// Returns true for network timeouts, connection errors, and temporary failures.
// Returns false for context cancellation and everything else.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"try again",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"broken pipe",
		"connection timed out",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// Do runs operation, retrying up to p.MaxRetries times while the error is
// retryable. The delay doubles on each attempt, capped at 30 seconds.
// Context cancellation stops retries immediately.
func Do(ctx context.Context, p Policy, operation func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = operation()

		if lastErr == nil {
			if attempt > 0 && p.Logger != nil {
				p.Logger.Debug("Operation succeeded after retries", "retries", attempt)
			}
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}

		if attempt == p.MaxRetries {
			return fmt.Errorf("operation failed after %d retries: %w", p.MaxRetries, lastErr)
		}

		delay := p.BaseDelay * time.Duration(1<<uint(attempt))
		if delay > maxDelay {
			delay = maxDelay
		}

		if p.Logger != nil {
			p.Logger.Warn("Retryable error encountered",
				"attempt", attempt+1, "maxRetries", p.MaxRetries, "error", lastErr, "delay", delay)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return lastErr
}
