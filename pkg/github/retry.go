package github

import (
	"errors"
	"net"
	"net/http"
	"time"
)

// RetryConfig controls retry behavior for API requests
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts
	Multiplier float64
}

// DefaultRetryConfig returns retry settings suitable for the GitHub API
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// GetDelay returns the backoff delay before the given retry attempt
// (0-based: attempt 0 is the first retry)
func (rc *RetryConfig) GetDelay(attempt int) time.Duration {
	delay := rc.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * rc.Multiplier)
		if delay >= rc.MaxDelay {
			return rc.MaxDelay
		}
	}
	if delay > rc.MaxDelay {
		return rc.MaxDelay
	}
	return delay
}

// ShouldRetry returns true for status codes where a retry can succeed.
// Only idempotent failures are retried; 4xx client errors other than
// rate limiting are permanent.
func (rc *RetryConfig) ShouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsRetryableError returns true for transport-level errors worth
// retrying, such as timeouts and temporary network failures
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return false
}
