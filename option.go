package authgate

import (
	"errors"
	"fmt"
	"time"

	"github.com/symphainy/authgate/tenant"
)

// Option configures a Gateway.
type Option func(*Gateway) error

// WithVerifier sets the local token verifier (REQUIRED).
//
// Example:
//
//	cache, _ := jwks.NewCache(jwks.WithSourceURL(jwksURL))
//	v, _ := verifier.New(cache, verifier.WithIssuer(issuer))
//	gw, err := authgate.New(authgate.WithVerifier(v))
func WithVerifier(v TokenVerifier) Option {
	return func(g *Gateway) error {
		if v == nil {
			return errors.New("verifier cannot be nil")
		}
		g.verifier = v
		return nil
	}
}

// WithVerifierOrigin sets the origin reported on allow decisions produced by
// the primary verifier. Deployments without local key material make the
// network validator the primary verifier; its decisions must still be
// labelled supabase_direct so the proxy can tell offline verification from
// network verification.
//
// Default: OriginLocalJWKS.
func WithVerifierOrigin(origin Origin) Option {
	return func(g *Gateway) error {
		switch origin {
		case OriginLocalJWKS, OriginSupabaseDirect:
			g.verifierOrigin = origin
			return nil
		default:
			return fmt.Errorf("unknown verifier origin %q", origin)
		}
	}
}

// WithFallback sets the network validator consulted when local verification
// is unavailable (JWKS never fetched, or a kid missing even after refresh).
// Without it, those failures answer 503 directly.
func WithFallback(f RemoteValidator) Option {
	return func(g *Gateway) error {
		if f == nil {
			return errors.New("fallback validator cannot be nil")
		}
		g.fallback = f
		return nil
	}
}

// WithTenantResolver sets the enrichment store. Without it, tenant context
// comes from token metadata alone.
func WithTenantResolver(r tenant.Resolver) Option {
	return func(g *Gateway) error {
		if r == nil {
			return errors.New("tenant resolver cannot be nil")
		}
		g.tenants = r
		return nil
	}
}

// WithMetadataFallback controls whether a store miss during enrichment may
// be answered from the token's metadata claims.
//
// Default: true.
func WithMetadataFallback(enabled bool) Option {
	return func(g *Gateway) error {
		g.metadataFallback = enabled
		return nil
	}
}

// WithEnrichTimeout bounds the tenant lookup per request.
//
// Default: DefaultEnrichTimeout.
func WithEnrichTimeout(timeout time.Duration) Option {
	return func(g *Gateway) error {
		if timeout <= 0 {
			return errors.New("enrich timeout must be positive")
		}
		g.enrichTimeout = timeout
		return nil
	}
}

// WithTokenExtractor sets how the bearer token is pulled off the request.
//
// Default: AuthHeaderTokenExtractor.
func WithTokenExtractor(e TokenExtractor) Option {
	return func(g *Gateway) error {
		if e == nil {
			return errors.New("token extractor cannot be nil")
		}
		g.extractor = e
		return nil
	}
}

// WithLogger sets the logger. See the Logger interface for adapters.
func WithLogger(l Logger) Option {
	return func(g *Gateway) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		g.logger = l
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(g *Gateway) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		g.metrics = m
		return nil
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(g *Gateway) error {
		if t == nil {
			return errors.New("tracer cannot be nil")
		}
		g.tracer = t
		return nil
	}
}
