package provider

import (
	"slices"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
)

type ProviderType string

// SupportedProviderTypes defines the supported CI provider types
const (
	GitLab    ProviderType = "gitlab"
	GitHub    ProviderType = "github"
	Bitbucket ProviderType = "bitbucket"
)

var supportedProviderTypes = []ProviderType{GitLab, GitHub, Bitbucket}

const (
	defaultRateLimitWait     = 15 * time.Minute
	defaultMaxRetries        = 5
	defaultRetryWaitMin      = time.Second
	defaultRetryWaitMax      = 30 * time.Second
	defaultRequestTimeout    = 30 * time.Second
	defaultRequestsPerSecond = 10
)

// Config represents CI provider configuration
type Config struct {
	Type    ProviderType `yaml:"type" env:"PROVIDER_TYPE" env-default:"github"`
	BaseURL string       `yaml:"base_url" env:"PROVIDER_BASE_URL"`
	Token   string       `yaml:"token" env:"PROVIDER_TOKEN"`

	// RateLimitWait is the longest pause allowed when the API asks to wait for a rate limit reset
	RateLimitWait time.Duration `yaml:"rate_limit_wait" env:"PROVIDER_RATE_LIMIT_WAIT"`
	MaxRetries    int           `yaml:"max_retries" env:"PROVIDER_MAX_RETRIES"`
	RetryWaitMin  time.Duration `yaml:"retry_wait_min" env:"PROVIDER_RETRY_WAIT_MIN"`
	RetryWaitMax  time.Duration `yaml:"retry_wait_max" env:"PROVIDER_RETRY_WAIT_MAX"`
	Timeout       time.Duration `yaml:"timeout" env:"PROVIDER_TIMEOUT"`

	// RequestsPerSecond throttles all requests of the client, a negative value disables it
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"PROVIDER_REQUESTS_PER_SECOND"`
}

func (c *Config) PrepareAndValidate() error {
	if c.Token == "" {
		return errm.New("token is required")
	}

	c.Type = lang.Check(c.Type, GitHub)
	if !slices.Contains(supportedProviderTypes, c.Type) {
		return errm.New("invalid provider type: %s", c.Type)
	}

	if c.MaxRetries < 0 {
		return errm.New("max retries must not be negative")
	}

	c.RateLimitWait = lang.Check(c.RateLimitWait, defaultRateLimitWait)
	c.MaxRetries = lang.Check(c.MaxRetries, defaultMaxRetries)
	c.RetryWaitMin = lang.Check(c.RetryWaitMin, defaultRetryWaitMin)
	c.RetryWaitMax = lang.Check(c.RetryWaitMax, defaultRetryWaitMax)
	c.Timeout = lang.Check(c.Timeout, defaultRequestTimeout)
	c.RequestsPerSecond = lang.Check(c.RequestsPerSecond, defaultRequestsPerSecond)

	if c.RetryWaitMax < c.RetryWaitMin {
		return errm.New("retry_wait_max must not be less than retry_wait_min")
	}

	return nil
}
