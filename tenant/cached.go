package tenant

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL keeps tenant context warm long enough to take the store
// off the hot path without letting role changes lag noticeably.
const DefaultCacheTTL = 30 * time.Second

// Cached wraps a Resolver with an in-process TTL cache. Only successful
// resolutions are cached; availability failures always retry the store, and
// ErrNotFound is cached so a subject without membership does not hit the
// store on every request.
type Cached struct {
	inner Resolver
	cache *gocache.Cache
}

type notFoundMarker struct{}

// NewCached builds the caching decorator. A non-positive ttl falls back to
// DefaultCacheTTL.
func NewCached(inner Resolver, ttl time.Duration) (*Cached, error) {
	if inner == nil {
		return nil, errors.New("tenant: inner resolver is required")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}, nil
}

// ResolveTenant implements Resolver.
func (c *Cached) ResolveTenant(ctx context.Context, subject string) (*Context, error) {
	if v, ok := c.cache.Get(subject); ok {
		if _, miss := v.(notFoundMarker); miss {
			return nil, ErrNotFound
		}
		return v.(*Context), nil
	}

	tc, err := c.inner.ResolveTenant(ctx, subject)
	if errors.Is(err, ErrNotFound) {
		c.cache.SetDefault(subject, notFoundMarker{})
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	c.cache.SetDefault(subject, tc)
	return tc, nil
}
