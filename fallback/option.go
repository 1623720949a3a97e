package fallback

import (
	"errors"
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client) error

// WithTimeout bounds each introspection call.
//
// Default: DefaultTimeout (2 seconds).
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		c.timeout = timeout
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for introspection calls. The
// per-call timeout is enforced via context regardless of the client's own
// timeout setting.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client == nil {
			return errors.New("HTTP client cannot be nil")
		}
		c.http = client
		return nil
	}
}
