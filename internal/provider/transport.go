package provider

import (
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/maxbolgarin/logze/v2"
	"golang.org/x/time/rate"
)

// NewHTTPClient builds the HTTP client shared by all providers.
// Requests are throttled to cfg.RequestsPerSecond and retried with exponential
// backoff on network errors, 5xx and 429 responses. The last response is
// passed through so API specific errors can be classified by the caller.
func NewHTTPClient(cfg Config, log logze.Logger) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{log: log}
	rc.HTTPClient.Timeout = cfg.Timeout

	if cfg.RequestsPerSecond > 0 {
		rc.HTTPClient.Transport = NewThrottledTransport(rc.HTTPClient.Transport, cfg.RequestsPerSecond)
	}

	return rc.StandardClient()
}

// ThrottledTransport waits for a rate limiter token before every request
type ThrottledTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

// NewThrottledTransport wraps next with a limiter of rps requests per second
func NewThrottledTransport(next http.RoundTripper, rps float64) *ThrottledTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &ThrottledTransport{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// RoundTrip implements http.RoundTripper
func (t *ThrottledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// leveledLogger writes retryablehttp logs to logze, request logs are debug only
type leveledLogger struct {
	log logze.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn(msg, keysAndValues...)
}

var _ retryablehttp.LeveledLogger = leveledLogger{}
