package releasea

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Default retry policy, used when a call is eligible for more than one attempt.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 250 * time.Millisecond
	DefaultMaxDelay    = 3 * time.Second
)

// DefaultRetryConfig returns the client-wide retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// retryPolicy merges a per-call override onto the client policy.
func (c *Client) retryPolicy(override *RetryConfig) RetryConfig {
	policy := c.retry
	if override != nil {
		if override.MaxAttempts > 0 {
			policy.MaxAttempts = override.MaxAttempts
		}
		if override.BaseDelay > 0 {
			policy.BaseDelay = override.BaseDelay
		}
		if override.MaxDelay > 0 {
			policy.MaxDelay = override.MaxDelay
		}
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return policy
}

// maxAttempts is 1 for anything that could duplicate a side effect. Only
// idempotent methods, or mutations explicitly marked idempotent and carrying
// an idempotency key, get the policy's attempt budget.
func maxAttempts(method string, explicitIdempotent bool, idempotencyKey string, policy RetryConfig) int {
	if IsIdempotentMethod(method) || (explicitIdempotent && idempotencyKey != "") {
		return policy.MaxAttempts
	}
	return 1
}

// retryDelay is the backoff for the wait after the given failed attempt. A
// Retry-After hint on 429/503 can lengthen it up to the policy's max delay.
func (c *Client) retryDelay(attempt int, policy RetryConfig, last *Response) time.Duration {
	delay := c.backoff.Delay(attempt, policy.BaseDelay, policy.MaxDelay)

	if last != nil && last.Header != nil &&
		(last.Status == http.StatusTooManyRequests || last.Status == http.StatusServiceUnavailable) {
		if hint := parseRetryAfter(last.Header.Get("Retry-After")); hint > delay {
			if hint > policy.MaxDelay {
				hint = policy.MaxDelay
			}
			if hint > delay {
				delay = hint
			}
		}
	}
	return delay
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds format and HTTP-date format.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}
	return 0
}
