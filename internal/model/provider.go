package model

import (
	"net/http"
	"time"
)

// ProviderConfig is what a concrete CI provider needs to talk to its API
type ProviderConfig struct {
	BaseURL string
	Token   string

	// RateLimitWait caps a single wait for a rate limit reset
	RateLimitWait time.Duration
	// MaxRetries is the number of rate limit waits before giving up
	MaxRetries int

	HTTPClient *http.Client
}
