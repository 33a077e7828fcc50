package client

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	outboundRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontend_outbound_retries_total",
		Help: "Total number of outbound retry attempts by method",
	}, []string{"method"})

	outboundRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontend_outbound_retry_exhausted_total",
		Help: "Total number of times outbound retry attempts were exhausted by method",
	}, []string{"method"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration

	// RetryableErrors lists the connection error codes that trigger a retry.
	// Nothing else is retried; response status codes are never inspected.
	RetryableErrors []syscall.Errno
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		Delay:           5 * time.Second,
		RetryableErrors: []syscall.Errno{syscall.ECONNRESET},
	}
}

// shouldRetry reports whether err carries one of the retryable error codes.
func (rc RetryConfig) shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	for _, code := range rc.RetryableErrors {
		if errors.Is(err, code) {
			return true
		}
	}
	return false
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable error,
// or the attempt budget is spent. It respects context cancellation.
func (c *Client) retryWithBackoff(ctx context.Context, method Method, target string, fn func(attempt int) error) error {
	rc := c.config.Retry
	attempt := 0
	var lastErr error

	operation := func() error {
		attempt++
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().
					Str("method", string(method)).
					Str("url", target).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !rc.shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(rc.Delay), uint64(rc.MaxAttempts-1)),
		ctx,
	)

	notify := func(err error, wait time.Duration) {
		outboundRetriesTotal.WithLabelValues(string(method)).Inc()
		c.logger.Warn().
			Err(err).
			Str("method", string(method)).
			Str("url", target).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after connection error")
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		return nil
	}

	if attempt >= rc.MaxAttempts && rc.shouldRetry(lastErr) {
		outboundRetryExhaustedTotal.WithLabelValues(string(method)).Inc()
		c.logger.Warn().
			Str("method", string(method)).
			Str("url", target).
			Int("max_attempts", rc.MaxAttempts).
			Msg("Retry attempts exhausted")
		return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, lastErr)
	}

	return err
}
