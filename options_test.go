package releasea

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWithBaseURL(t *testing.T) {
	client := New(WithBaseURL("https://console.example.com/"))

	if client.baseURL != "https://console.example.com" {
		t.Errorf("Expected trailing slash to be trimmed, got %s", client.baseURL)
	}
}

func TestWithTimeout(t *testing.T) {
	client := New(WithTimeout(5 * time.Second))

	if client.timeout != 5*time.Second {
		t.Errorf("Expected timeout=5s, got %v", client.timeout)
	}
}

func TestWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	client := New(WithRetry(cfg))

	if client.retry != cfg {
		t.Errorf("Expected retry=%+v, got %+v", cfg, client.retry)
	}
}

func TestWithHTTPClient(t *testing.T) {
	custom := &http.Client{}
	client := New(WithHTTPClient(custom))

	if client.httpClient != custom {
		t.Error("Expected custom HTTP client to be used")
	}
	if custom.Jar == nil {
		t.Error("Expected a cookie jar to be installed on the custom client")
	}
}

func TestWithSession(t *testing.T) {
	session := NewSession()
	session.SetToken("shared")

	a := New(WithSession(session))
	b := New(WithSession(session))

	if a.Token() != "shared" || b.Token() != "shared" {
		t.Error("Expected both clients to see the shared session")
	}
	a.SetToken("")
	if b.Token() != "" {
		t.Error("Expected clearing through one client to clear the shared session")
	}
}

func TestWithMetricsCollector(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	client := New(WithMetricsCollector(collector))

	if client.metrics != collector {
		t.Error("Expected custom metrics collector to be set")
	}
}

func TestWithRateLimit(t *testing.T) {
	client := New(WithRateLimit(20, 5))

	if client.limiter == nil {
		t.Fatal("Expected rate limiter to be set")
	}
	if client.limiter.Burst() != 5 {
		t.Errorf("Expected burst=5, got %d", client.limiter.Burst())
	}
}

func TestSecurityOptions(t *testing.T) {
	client := New(
		WithCSRFMinLength(32),
		WithIdempotencyWindow(time.Minute),
		WithRefreshSkew(30*time.Second),
		WithStrictParsing(),
		WithCorrelationIDGenerator(func() string { return "fixed" }),
	)

	if client.csrf.minLength != 32 {
		t.Errorf("Expected csrf minLength=32, got %d", client.csrf.minLength)
	}
	if client.idempotency.window != time.Minute {
		t.Errorf("Expected idempotency window=1m, got %v", client.idempotency.window)
	}
	if client.refreshSkew != 30*time.Second {
		t.Errorf("Expected refreshSkew=30s, got %v", client.refreshSkew)
	}
	if !client.strictParsing {
		t.Error("Expected strict parsing")
	}
	if client.newCorrelationID() != "fixed" {
		t.Error("Expected custom correlation id generator")
	}
}

func TestWithIdempotentEndpoints(t *testing.T) {
	client := New(WithIdempotentEndpoints(`^/workers$`))

	if !client.idempotency.matches("/workers") {
		t.Error("Expected /workers to be allowlisted")
	}
	if client.idempotency.matches("/deploys") {
		t.Error("Expected default patterns to be replaced")
	}

	invalid := New(WithIdempotentEndpoints(`^/workers(`))
	if invalid.IsValid() {
		t.Error("Expected invalid pattern to fail validation")
	}
}

func TestValidateConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		wantErr string
	}{
		{name: "defaults", options: nil},
		{name: "relative base url", options: []Option{WithBaseURL("console.local")}, wantErr: "baseURL"},
		{name: "zero attempts", options: []Option{WithRetry(RetryConfig{MaxAttempts: 0, BaseDelay: time.Second, MaxDelay: time.Second})}, wantErr: "MaxAttempts"},
		{name: "max below base", options: []Option{WithRetry(RetryConfig{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Millisecond})}, wantErr: "MaxDelay"},
		{name: "zero timeout", options: []Option{WithTimeout(0)}, wantErr: "timeout"},
		{name: "zero csrf length", options: []Option{WithCSRFMinLength(0)}, wantErr: "csrfMinLength"},
		{name: "negative skew", options: []Option{WithRefreshSkew(-time.Second)}, wantErr: "refreshSkew"},
		{name: "zero burst", options: []Option{WithRateLimit(10, 0)}, wantErr: "burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.options...)
			err := client.ValidationError()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no validation error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected validation error mentioning %q", tt.wantErr)
			}
			if client.IsValid() {
				t.Error("Expected IsValid() to be false")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error to mention %q, got %v", tt.wantErr, err)
			}
			var clientErr *ClientError
			if !errors.As(err, &clientErr) {
				t.Errorf("Expected *ClientError, got %T", err)
			}
		})
	}
}
