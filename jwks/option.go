package jwks

import (
	"errors"
	"net/http"
	"time"
)

// CacheOption configures a Cache.
type CacheOption func(*Cache) error

// WithSourceURL sets the JWKS document URL. Required.
//
// The URL is normalized during construction; a well-known segment missing its
// leading slash is repaired rather than rejected.
func WithSourceURL(rawURL string) CacheOption {
	return func(c *Cache) error {
		if rawURL == "" {
			return errors.New("source URL cannot be empty")
		}
		c.sourceURL = rawURL
		return nil
	}
}

// WithIssuer records the issuer the key material belongs to. The value is
// carried on every KeySet snapshot for claim validation downstream.
func WithIssuer(issuer string) CacheOption {
	return func(c *Cache) error {
		c.issuer = issuer
		return nil
	}
}

// WithTTL sets how long a fetched KeySet is considered fresh.
//
// Default: DefaultTTL (10 minutes, the identity provider's own cache guidance).
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) error {
		if ttl <= 0 {
			return errors.New("TTL must be positive")
		}
		c.ttl = ttl
		return nil
	}
}

// WithMinRefreshInterval bounds how often a lookup miss may force a fetch.
// TTL-driven and explicit refreshes are not subject to this bound.
//
// Default: DefaultMinRefreshInterval.
func WithMinRefreshInterval(interval time.Duration) CacheOption {
	return func(c *Cache) error {
		if interval < 0 {
			return errors.New("minimum refresh interval cannot be negative")
		}
		c.minRefreshInterval = interval
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for JWKS fetches.
//
// Default: a client with a 30 second timeout.
func WithHTTPClient(client *http.Client) CacheOption {
	return func(c *Cache) error {
		if client == nil {
			return errors.New("HTTP client cannot be nil")
		}
		c.client = client
		return nil
	}
}

// WithClock overrides the time source. Used in tests to drive TTL expiry.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		c.now = now
		return nil
	}
}
