package jwks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/symphainy/authgate/internal/wellknown"
)

const (
	// DefaultTTL matches the cache guidance published by the identity
	// provider for its JWKS endpoint.
	DefaultTTL = 10 * time.Minute

	// DefaultMinRefreshInterval bounds how often a lookup miss may force a
	// fetch. Tokens carrying random kids must not be able to hammer the
	// issuer between legitimate rotations.
	DefaultMinRefreshInterval = 10 * time.Second

	// maxDocumentSize caps the JWKS response body. Real documents are a few
	// kilobytes.
	maxDocumentSize = 1 * 1024 * 1024
)

var (
	// ErrKeyNotFound is returned when a kid is absent from the key set even
	// after a forced refresh.
	ErrKeyNotFound = errors.New("jwks: key not found")

	// ErrUnavailable is returned when no key set has ever been fetched and
	// the source cannot be reached. Once a fetch has succeeded, refresh
	// failures serve the stale snapshot instead.
	ErrUnavailable = errors.New("jwks: key set unavailable")
)

// Status is a point-in-time view of the cache for health reporting.
type Status struct {
	FetchedAt    time.Time     `json:"fetched_at"`
	Age          time.Duration `json:"age"`
	KeyCount     int           `json:"key_count"`
	LastError    string        `json:"last_error,omitempty"`
	LastErrorAt  time.Time     `json:"last_error_at,omitempty"`
	FetchCount   int64         `json:"fetch_count"`
	ServingStale bool          `json:"serving_stale"`
}

// Cache owns the live KeySet for one JWKS source URL.
//
// Readers load the current snapshot through an atomic pointer and never
// block each other. A refresh builds a complete KeySet off to the side and
// swaps it in; concurrent refresh demand collapses onto a single in-flight
// fetch via singleflight.
type Cache struct {
	sourceURL          string
	issuer             string
	ttl                time.Duration
	minRefreshInterval time.Duration
	client             *http.Client
	now                func() time.Time

	current atomic.Pointer[KeySet]
	group   singleflight.Group

	mu          sync.Mutex
	lastAttempt time.Time
	lastErr     error
	lastErrAt   time.Time
	fetchCount  atomic.Int64
}

// NewCache builds a Cache for the given options. WithSourceURL is required;
// the URL is normalized before first use so a missing well-known separator
// does not take the gateway down.
func NewCache(opts ...CacheOption) (*Cache, error) {
	c := &Cache{
		ttl:                DefaultTTL,
		minRefreshInterval: DefaultMinRefreshInterval,
		client:             &http.Client{Timeout: 30 * time.Second},
		now:                time.Now,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if c.sourceURL == "" {
		return nil, errors.New("jwks: source URL is required (use WithSourceURL)")
	}

	normalized, err := wellknown.NormalizeJWKSURL(c.sourceURL)
	if err != nil {
		return nil, err
	}
	c.sourceURL = normalized

	return c, nil
}

// SourceURL returns the normalized JWKS document URL.
func (c *Cache) SourceURL() string {
	return c.sourceURL
}

// Snapshot returns the current KeySet without triggering any fetch.
// It is nil until the first successful refresh.
func (c *Cache) Snapshot() *KeySet {
	return c.current.Load()
}

// Key resolves a kid to a verification key.
//
// When the snapshot is missing, expired, or does not contain the kid, one
// refresh is forced (rotation handling) and the lookup is retried against the
// new snapshot. A second miss is ErrKeyNotFound. If no snapshot has ever been
// installed and the fetch fails, the error wraps ErrUnavailable.
func (c *Cache) Key(ctx context.Context, kid string) (*SigningKey, error) {
	ks := c.current.Load()
	if ks != nil && !ks.Expired(c.now()) {
		if key, ok := ks.Key(kid); ok {
			return key, nil
		}
	}

	refreshed, err := c.refresh(ctx, ks, false)
	if err != nil {
		return nil, err
	}

	if key, ok := refreshed.Key(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q not in key set from %s", ErrKeyNotFound, kid, c.sourceURL)
}

// Invalidate drops the current snapshot so the next lookup fetches fresh key
// material. Intended for operator tooling, not the request path.
func (c *Cache) Invalidate() {
	c.current.Store(nil)
}

// Refresh forces a fetch regardless of TTL, honoring single-flight.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx, nil, true)
	return err
}

// refresh fetches and installs a new KeySet, collapsing concurrent callers
// onto one outbound request. prev is the snapshot the caller based its miss
// on; when another caller already replaced it, the fetch is skipped.
func (c *Cache) refresh(ctx context.Context, prev *KeySet, force bool) (*KeySet, error) {
	v, err, _ := c.group.Do(c.sourceURL, func() (interface{}, error) {
		cur := c.current.Load()

		// A racing caller may have installed a fresh snapshot while this
		// one waited its turn.
		if !force && cur != nil && cur != prev && !cur.Expired(c.now()) {
			return cur, nil
		}

		// The rate limit only guards miss-triggered refreshes of a fresh
		// snapshot. TTL expiry and explicit Refresh always go out: random
		// kids must not hammer the issuer, legitimate rotation must not
		// wait out the interval.
		if !force && cur != nil && !cur.Expired(c.now()) && !c.refreshPermitted() {
			return cur, nil
		}

		ks, fetchErr := c.fetch(ctx)
		c.recordAttempt(fetchErr)
		if fetchErr != nil {
			// Serve-stale-on-error: a previously good snapshot beats
			// failing every request during an issuer outage.
			if cur != nil {
				return cur, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, fetchErr)
		}

		c.current.Store(ks)
		return ks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*KeySet), nil
}

func (c *Cache) refreshPermitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.lastAttempt) >= c.minRefreshInterval
}

func (c *Cache) recordAttempt(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAttempt = c.now()
	c.lastErr = err
	if err != nil {
		c.lastErrAt = c.lastAttempt
	}
}

func (c *Cache) fetch(ctx context.Context) (*KeySet, error) {
	c.fetchCount.Add(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("jwks: could not build request for %s: %w", c.sourceURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks: fetch from %s failed: %w", c.sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks: fetch from %s returned status %d", c.sourceURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("jwks: could not read document from %s: %w", c.sourceURL, err)
	}

	return ParseKeySet(body, c.sourceURL, c.issuer, c.ttl, c.now())
}

// Status reports cache health for the /healthz surface.
func (c *Cache) Status() Status {
	c.mu.Lock()
	lastErr := c.lastErr
	lastErrAt := c.lastErrAt
	c.mu.Unlock()

	st := Status{FetchCount: c.fetchCount.Load()}
	if lastErr != nil {
		st.LastError = lastErr.Error()
		st.LastErrorAt = lastErrAt
	}

	if ks := c.current.Load(); ks != nil {
		now := c.now()
		st.FetchedAt = ks.FetchedAt
		st.Age = ks.Age(now)
		st.KeyCount = ks.Len()
		st.ServingStale = ks.Expired(now)
	}

	return st
}
