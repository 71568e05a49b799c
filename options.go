package releasea

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Option configures a Client.
type Option func(*Client)

// WithConfig applies an environment-loaded Config. Options given after it
// override individual settings.
func WithConfig(cfg *Config) Option {
	return func(c *Client) {
		if cfg == nil {
			return
		}
		c.baseURL = cfg.BaseURL
		c.apiPrefix = cfg.APIPrefix
		c.timeout = cfg.Timeout
		c.retry = cfg.RetryConfig()
		c.csrfMinLength = cfg.CSRFMinLength
		c.idempotencyWindow = cfg.IdempotencyWindow
		c.refreshSkew = cfg.RefreshSkew
		c.strictParsing = cfg.StrictParsing
		if cfg.RateLimit > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
		}
		if c.logger == nil {
			c.logger = NewSimpleLogger(ParseLogLevel(cfg.LogLevel))
		}
	}
}

// WithBaseURL sets the backend origin, e.g. "https://console.example.com".
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithAPIPrefix sets the version prefix prepended to every endpoint.
func WithAPIPrefix(prefix string) Option {
	return func(c *Client) {
		c.apiPrefix = prefix
	}
}

// WithTimeout sets the default per-attempt timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetry sets the default retry policy
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithHTTPClient sets a custom HTTP client. A cookie jar is added when it has
// none, since refresh relies on the refresh cookie.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSession shares session state between clients.
func WithSession(session *Session) Option {
	return func(c *Client) {
		c.session = session
	}
}

// WithLogger sets a custom logger
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithRateLimit throttles physical attempts to rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithIdempotentEndpoints replaces the endpoint patterns that get derived
// idempotency keys. Patterns are regular expressions matched against the
// lowercased endpoint path.
func WithIdempotentEndpoints(patterns ...string) Option {
	return func(c *Client) {
		c.idempotentEndpoints = patterns
	}
}

// WithIdempotencyWindow sets how long a derived key is reused.
func WithIdempotencyWindow(d time.Duration) Option {
	return func(c *Client) {
		c.idempotencyWindow = d
	}
}

// WithRefreshSkew refreshes the session before sending when the bearer token
// expires within d.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *Client) {
		c.refreshSkew = d
	}
}

// WithStrictParsing turns malformed JSON success bodies into parse_error
// failures instead of nil data.
func WithStrictParsing() Option {
	return func(c *Client) {
		c.strictParsing = true
	}
}

// WithCSRFMinLength sets the shortest acceptable CSRF token.
func WithCSRFMinLength(n int) Option {
	return func(c *Client) {
		c.csrfMinLength = n
	}
}

// WithCorrelationIDGenerator sets a custom function for generating correlation IDs
func WithCorrelationIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.newCorrelationID = gen
		}
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateEndpointConfig()...)
	errors = append(errors, c.validateRetryConfig()...)
	errors = append(errors, c.validateSecurityConfig()...)
	errors = append(errors, c.validateRateLimiterConfig()...)

	if len(errors) > 0 {
		return newClientError(KindHTTP, 0, "configuration validation failed",
			fmt.Errorf("validation errors: %s", strings.Join(errors, "; ")))
	}

	return nil
}

func (c *Client) validateEndpointConfig() []string {
	var errors []string

	if !strings.HasPrefix(c.baseURL, "http://") && !strings.HasPrefix(c.baseURL, "https://") {
		errors = append(errors, "baseURL must start with http:// or https://")
	}

	if c.httpClient == nil {
		errors = append(errors, "httpClient must not be nil")
	}

	return errors
}

// validateRetryConfig validates retry-related configuration
func (c *Client) validateRetryConfig() []string {
	var errors []string

	if c.retry.MaxAttempts < 1 {
		errors = append(errors, "retry.MaxAttempts must be at least 1")
	}

	if c.retry.BaseDelay <= 0 {
		errors = append(errors, "retry.BaseDelay must be positive")
	}

	if c.retry.MaxDelay < c.retry.BaseDelay {
		errors = append(errors, "retry.MaxDelay must be greater than or equal to retry.BaseDelay")
	}

	if c.timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}

	return errors
}

func (c *Client) validateSecurityConfig() []string {
	var errors []string

	if c.csrfMinLength < 1 {
		errors = append(errors, "csrfMinLength must be positive")
	}

	if c.idempotencyWindow <= 0 {
		errors = append(errors, "idempotencyWindow must be positive")
	}

	if c.refreshSkew < 0 {
		errors = append(errors, "refreshSkew must be non-negative")
	}

	return errors
}

// validateRateLimiterConfig validates rate limiter configuration
func (c *Client) validateRateLimiterConfig() []string {
	var errors []string

	if c.limiter != nil {
		if c.limiter.Limit() <= 0 {
			errors = append(errors, "rate limit must be positive")
		}
		if c.limiter.Burst() < 1 {
			errors = append(errors, "rate limit burst must be at least 1")
		}
	}

	return errors
}

// IsValid reports whether the client passed configuration validation.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration error found by New, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
