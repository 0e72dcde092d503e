package apiclient

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shnupta/porter/pkg/retry"
)

// DefaultRequestTimeout bounds each HTTP request.
const DefaultRequestTimeout = 30 * time.Second

// Logger interface for request logging
type Logger interface {
	Printf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...interface{}) {
	log.Printf("[APICLIENT] "+format, v...)
}

func (l *defaultLogger) Errorf(format string, v ...interface{}) {
	log.Printf("[APICLIENT] ERROR: "+format, v...)
}

func (l *defaultLogger) Debugf(format string, v ...interface{}) {
	log.Printf("[APICLIENT] DEBUG: "+format, v...)
}

// ClientOption configures a Client
type ClientOption func(*Client) error

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithRequestTimeout sets the per-request timeout
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive, got %v", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

// WithRetryConfig sets the backoff policy for retryable requests
func WithRetryConfig(cfg retry.Config) ClientOption {
	return func(c *Client) error {
		c.retryCfg = cfg
		return nil
	}
}

// WithClientLogger sets a custom logger
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}
