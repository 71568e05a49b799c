package releasea

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Client defaults.
const (
	DefaultBaseURL   = "http://localhost:8080"
	DefaultAPIPrefix = "/api/v1"
	DefaultTimeout   = 15 * time.Second
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
const EnvPrefix = "RELEASEA_API"

// Config is the environment-driven client configuration. Apply it with
// WithConfig.
type Config struct {
	BaseURL   string        `envconfig:"BASE_URL" default:"http://localhost:8080"`
	APIPrefix string        `envconfig:"PREFIX" default:"/api/v1"`
	Timeout   time.Duration `envconfig:"TIMEOUT" default:"15s"`

	// Retry policy
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"250ms"`
	RetryMaxDelay    time.Duration `envconfig:"RETRY_MAX_DELAY" default:"3s"`

	CSRFMinLength     int           `envconfig:"CSRF_MIN_LENGTH" default:"16"`
	IdempotencyWindow time.Duration `envconfig:"IDEMPOTENCY_WINDOW" default:"30s"`

	// Client-side rate limit in requests per second; 0 disables it.
	RateLimit float64 `envconfig:"RATE_LIMIT" default:"0"`
	RateBurst int     `envconfig:"RATE_BURST" default:"10"`

	// Refresh ahead of token expiry; 0 disables proactive refresh.
	RefreshSkew time.Duration `envconfig:"REFRESH_SKEW" default:"0s"`

	StrictParsing bool   `envconfig:"STRICT_PARSING" default:"false"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from RELEASEA_API_* environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []string

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "BASE_URL must be an absolute URL")
	}
	if c.Timeout <= 0 {
		errs = append(errs, "TIMEOUT must be positive")
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, "RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryBaseDelay <= 0 {
		errs = append(errs, "RETRY_BASE_DELAY must be positive")
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		errs = append(errs, "RETRY_MAX_DELAY must be greater than or equal to RETRY_BASE_DELAY")
	}
	if c.CSRFMinLength < 1 {
		errs = append(errs, "CSRF_MIN_LENGTH must be positive")
	}
	if c.IdempotencyWindow <= 0 {
		errs = append(errs, "IDEMPOTENCY_WINDOW must be positive")
	}
	if c.RateLimit < 0 {
		errs = append(errs, "RATE_LIMIT must be non-negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, "RATE_BURST must be at least 1 when RATE_LIMIT is set")
	}
	if c.RefreshSkew < 0 {
		errs = append(errs, "REFRESH_SKEW must be non-negative")
	}

	if len(errs) > 0 {
		return newClientError(KindHTTP, 0, "configuration validation failed",
			fmt.Errorf("validation errors: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// RetryConfig returns the retry policy described by the configuration.
func (c *Config) RetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: c.RetryMaxAttempts,
		BaseDelay:   c.RetryBaseDelay,
		MaxDelay:    c.RetryMaxDelay,
	}
}
