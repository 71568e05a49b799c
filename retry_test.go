package releasea

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/releasea/releasea-console-sub001/internal/backoff"
)

func TestMaxAttempts(t *testing.T) {
	policy := RetryConfig{MaxAttempts: 4}

	tests := []struct {
		name       string
		method     string
		idempotent bool
		key        string
		want       int
	}{
		{name: "GET", method: http.MethodGet, want: 4},
		{name: "HEAD", method: http.MethodHead, want: 4},
		{name: "OPTIONS", method: http.MethodOptions, want: 4},
		{name: "PUT", method: http.MethodPut, want: 4},
		{name: "DELETE", method: http.MethodDelete, want: 4},
		{name: "POST", method: http.MethodPost, want: 1},
		{name: "PATCH", method: http.MethodPatch, want: 1},
		{name: "POST with key only", method: http.MethodPost, key: "k", want: 1},
		{name: "POST marked idempotent without key", method: http.MethodPost, idempotent: true, want: 1},
		{name: "POST marked idempotent with key", method: http.MethodPost, idempotent: true, key: "k", want: 4},
		{name: "PATCH marked idempotent with key", method: http.MethodPatch, idempotent: true, key: "k", want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maxAttempts(tt.method, tt.idempotent, tt.key, policy))
		})
	}
}

func TestRetryPolicyMerge(t *testing.T) {
	client := New(WithRetry(RetryConfig{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}))

	assert.Equal(t, client.retry, client.retryPolicy(nil))
	assert.Equal(t,
		RetryConfig{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second},
		client.retryPolicy(&RetryConfig{MaxAttempts: 5}))
	assert.Equal(t,
		RetryConfig{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond},
		client.retryPolicy(&RetryConfig{BaseDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond}))
}

func TestRetryDelay(t *testing.T) {
	client := New()
	client.backoff = backoff.ExponentialJitterStrategy{}
	policy := RetryConfig{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

	assert.Equal(t, 100*time.Millisecond, client.retryDelay(1, policy, nil))
	assert.Equal(t, 400*time.Millisecond, client.retryDelay(3, policy, nil))

	limited := &Response{Status: http.StatusTooManyRequests, Header: http.Header{"Retry-After": {"1"}}}
	assert.Equal(t, time.Second, client.retryDelay(1, policy, limited))

	capped := &Response{Status: http.StatusServiceUnavailable, Header: http.Header{"Retry-After": {"120"}}}
	assert.Equal(t, 2*time.Second, client.retryDelay(1, policy, capped))

	ignored := &Response{Status: http.StatusInternalServerError, Header: http.Header{"Retry-After": {"1"}}}
	assert.Equal(t, 100*time.Millisecond, client.retryDelay(1, policy, ignored))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))

	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(future)
	assert.Greater(t, got, 8*time.Second)
	assert.LessOrEqual(t, got, 10*time.Second)

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(past))
}
