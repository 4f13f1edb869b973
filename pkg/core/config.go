package core

import (
	"errors"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Credentials holds the access/refresh token pair used to authenticate
// operations against the indexer API. Tokens are opaque strings.
type Credentials struct {
	// AccessToken is attached to operations as a bearer token.
	AccessToken string `json:"access_token"`
	// RefreshToken is exchanged for a new pair when the access token expires.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Environment variable names consumed by ConfigFromEnv.
const (
	EnvEndpoint          = "SOROSCAN_GRAPHQL_URL"
	EnvStreamingEndpoint = "SOROSCAN_GRAPHQL_WS_URL"
	EnvAccessToken       = "SOROSCAN_ACCESS_TOKEN"
	EnvRefreshToken      = "SOROSCAN_REFRESH_TOKEN"
)

// Config contains all configuration options for a transport router.
// It covers endpoints, authentication, retry and reconnect backoff, rate
// limiting, caching, and circuit breaker settings.
type Config struct {
	// Endpoint is the GraphQL HTTP endpoint for queries and mutations.
	Endpoint string `json:"endpoint" validate:"required,url"`
	// StreamingEndpoint is the websocket endpoint for subscriptions.
	// When empty, streaming is unavailable and subscriptions fail fast.
	StreamingEndpoint string `json:"streaming_endpoint,omitempty" validate:"omitempty,url"`
	// Credentials seeds the credential store. Optional for public data.
	Credentials *Credentials `json:"credentials,omitempty"`

	// Timeout is the maximum duration for a single HTTP request.
	Timeout time.Duration `json:"timeout" validate:"min=1ms"`
	// MaxAttempts bounds the HTTP retry loop, counting the initial attempt.
	MaxAttempts  int           `json:"max_attempts" validate:"min=1"`
	RetryWaitMin time.Duration `json:"retry_wait_min" validate:"min=0"`
	RetryWaitMax time.Duration `json:"retry_wait_max" validate:"min=0"`

	// ReconnectBaseWait and ReconnectMaxWait bound the socket reconnect
	// backoff. Unlike the HTTP retry loop, reconnection never gives up.
	ReconnectBaseWait time.Duration `json:"reconnect_base_wait" validate:"min=1ms"`
	ReconnectMaxWait  time.Duration `json:"reconnect_max_wait" validate:"min=1ms"`

	// EventBufferSize is the capacity of the live event window kept for UI reads.
	EventBufferSize int `json:"event_buffer_size" validate:"min=1"`
	// MaxSubscriptions caps concurrent subscriptions. The indexer enforces
	// the same cap per client address; zero disables the client-side cap.
	MaxSubscriptions int `json:"max_subscriptions" validate:"min=0"`

	RateLimitRequests int           `json:"rate_limit_requests" validate:"min=1"`
	RateLimitPeriod   time.Duration `json:"rate_limit_period" validate:"min=1ms"`

	CacheEnabled bool          `json:"cache_enabled"`
	CacheTTL     time.Duration `json:"cache_ttl" validate:"min=0"`

	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config initialized with sensible defaults for the
// given HTTP endpoint. Default values: 10s timeout, 3 attempts with
// 300ms-3s retry backoff, 1s-30s reconnect backoff, 100-event buffer,
// 5 concurrent subscriptions, 1200 req/min rate limit, caching disabled,
// circuit breaker with 5 failures/2 successes/30s timeout.
func DefaultConfig(endpoint string) *Config {
	return &Config{
		Endpoint: endpoint,

		Timeout:      10 * time.Second,
		MaxAttempts:  3,
		RetryWaitMin: 300 * time.Millisecond,
		RetryWaitMax: 3 * time.Second,

		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  30 * time.Second,

		EventBufferSize:  100,
		MaxSubscriptions: 5,

		RateLimitRequests: 1200,
		RateLimitPeriod:   time.Minute,

		CacheEnabled: false,
		CacheTTL:     1 * time.Second,

		CircuitBreakerEnabled:          true,
		CircuitBreakerFailThreshold:    5,
		CircuitBreakerSuccessThreshold: 2,
		CircuitBreakerTimeout:          30 * time.Second,

		LogLevel: "info",
	}
}

// ConfigFromEnv builds a Config from SOROSCAN_* environment variables.
// Unset variables keep their defaults. An unset streaming endpoint leaves
// subscriptions unavailable rather than guessing a websocket URL.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig(os.Getenv(EnvEndpoint))
	if ws := os.Getenv(EnvStreamingEndpoint); ws != "" {
		cfg.StreamingEndpoint = ws
	}
	access := os.Getenv(EnvAccessToken)
	refresh := os.Getenv(EnvRefreshToken)
	if access != "" || refresh != "" {
		cfg.Credentials = &Credentials{AccessToken: access, RefreshToken: refresh}
	}
	return cfg
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.ReconnectBaseWait > c.ReconnectMaxWait {
		return errors.New("ReconnectBaseWait must not exceed ReconnectMaxWait")
	}
	if c.RetryWaitMin > c.RetryWaitMax {
		return errors.New("RetryWaitMin must not exceed RetryWaitMax")
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 {
			return errors.New("CircuitBreakerFailThreshold must be positive when enabled")
		}
		if c.CircuitBreakerSuccessThreshold <= 0 {
			return errors.New("CircuitBreakerSuccessThreshold must be positive when enabled")
		}
		if c.CircuitBreakerTimeout <= 0 {
			return errors.New("CircuitBreakerTimeout must be positive when enabled")
		}
	}
	return nil
}

// WithCredentials sets the initial credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithStreaming sets the websocket endpoint and returns the config for chaining.
func (c *Config) WithStreaming(endpoint string) *Config {
	c.StreamingEndpoint = endpoint
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRetry sets the retry attempt cap and backoff bounds and returns the
// config for chaining.
func (c *Config) WithRetry(maxAttempts int, waitMin, waitMax time.Duration) *Config {
	c.MaxAttempts = maxAttempts
	c.RetryWaitMin = waitMin
	c.RetryWaitMax = waitMax
	return c
}

// WithRateLimit sets the rate limiting parameters and returns the config for chaining.
func (c *Config) WithRateLimit(requests int, period time.Duration) *Config {
	c.RateLimitRequests = requests
	c.RateLimitPeriod = period
	return c
}

// WithCache enables or disables query caching with the specified TTL and
// returns the config for chaining.
func (c *Config) WithCache(enabled bool, ttl time.Duration) *Config {
	c.CacheEnabled = enabled
	c.CacheTTL = ttl
	return c
}

// WithEventBufferSize sets the live event window capacity and returns the
// config for chaining.
func (c *Config) WithEventBufferSize(size int) *Config {
	c.EventBufferSize = size
	return c
}

// WithLogLevel sets the log level and returns the config for chaining.
func (c *Config) WithLogLevel(level string) *Config {
	c.LogLevel = level
	return c
}
