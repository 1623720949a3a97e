package authgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/symphainy/authgate/tenant"
	"github.com/symphainy/authgate/verifier"
)

// DefaultEnrichTimeout bounds the tenant lookup per request.
const DefaultEnrichTimeout = 2 * time.Second

// TokenVerifier is the local verification stage. *verifier.Verifier
// satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*verifier.Result, error)
}

// RemoteValidator is the network fallback stage. *fallback.Client satisfies
// it. It is consulted only for availability-class local failures.
type RemoteValidator interface {
	Validate(ctx context.Context, rawToken string) (*verifier.Result, error)
}

// Gateway is the forward-auth decision point. The reverse proxy sends every
// inbound request here first; the Gateway answers 200 with identity headers
// or a terminal status with none, and the proxy acts accordingly.
//
// A Gateway holds no per-request state and is safe for unbounded concurrent
// use; the key set cache behind the verifier is the only shared mutable
// state in the pipeline.
type Gateway struct {
	verifier       TokenVerifier
	verifierOrigin Origin
	fallback       RemoteValidator
	tenants        tenant.Resolver
	extractor      TokenExtractor

	metadataFallback bool
	enrichTimeout    time.Duration

	logger  Logger
	metrics Metrics
	tracer  Tracer
}

// New builds a Gateway. WithVerifier is required; everything else has a
// working default (no fallback, no enrichment store, header extraction).
func New(opts ...Option) (*Gateway, error) {
	g := &Gateway{
		extractor:        AuthHeaderTokenExtractor,
		verifierOrigin:   OriginLocalJWKS,
		enrichTimeout:    DefaultEnrichTimeout,
		metadataFallback: true,
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if g.verifier == nil {
		return nil, errors.New("authgate: a token verifier is required (use WithVerifier)")
	}

	return g, nil
}

// Handler returns the proxy-facing HTTP handler. Any method is accepted and
// the body is ignored; only the Authorization header matters.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.Decide(r).Write(w)
	})
}

// Decide runs the full decision pipeline for one request:
//
//	extract token → verify locally → (fallback if availability failure)
//	→ enrich tenant context → decision
//
// Cryptographic and claim failures are terminal after local verification;
// they are never retried over the network.
func (g *Gateway) Decide(r *http.Request) *Decision {
	ctx := r.Context()
	start := time.Now()
	reqID := uuid.NewString()

	var span Span
	if g.tracer != nil {
		span = g.tracer.StartSpan("authgate.decide")
		defer span.Finish()
	}

	d := g.decide(ctx, r, reqID)

	if span != nil {
		span.SetTag("decision.status", d.Status)
		if d.Allowed() {
			span.SetTag("decision.origin", string(d.Origin))
		} else {
			span.SetTag("decision.kind", string(d.Kind))
		}
	}
	g.observe(d, start)
	return d
}

func (g *Gateway) decide(ctx context.Context, r *http.Request, reqID string) *Decision {
	token, err := g.extractor(r)
	if err != nil || token == "" {
		g.debugf("no usable bearer token [req %s]", reqID)
		return deny(ErrMissingToken)
	}

	origin := g.verifierOrigin
	var res *verifier.Result
	var verr error
	g.traced("authgate.verify", func() {
		res, verr = g.verifier.Verify(ctx, token)
	})
	if verr != nil {
		if !KindOf(verr).fallbackEligible() || g.fallback == nil {
			g.debugf("local verification rejected token: %v [req %s]", verr, reqID)
			return deny(verr)
		}

		g.warnf("local verification unavailable (%v), trying provider directly [req %s]", verr, reqID)
		g.traced("authgate.fallback", func() {
			res, err = g.fallback.Validate(ctx, token)
		})
		if err != nil {
			return deny(err)
		}
		origin = OriginSupabaseDirect
	}

	var tc *tenant.Context
	g.traced("authgate.enrich", func() {
		tc, err = g.enrich(ctx, res)
	})
	if err != nil {
		g.errorf("tenant lookup failed for subject %s: %v [req %s]", res.Subject, err, reqID)
		return deny(err)
	}

	g.debugf("allowed subject %s via %s [req %s]", res.Subject, origin, reqID)
	return allow(res, tc, origin)
}

// enrich resolves the verified subject into tenant context. A store miss may
// be answered from token metadata; anything else is terminal, because the
// header contract cannot be completed without tenant context.
func (g *Gateway) enrich(ctx context.Context, res *verifier.Result) (*tenant.Context, error) {
	if g.tenants == nil {
		if tc := tenant.FromClaims(res.Claims); tc != nil {
			return tc, nil
		}
		return nil, fmt.Errorf("%w: no resolver and no tenant metadata", tenant.ErrLookupFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, g.enrichTimeout)
	defer cancel()

	tc, err := g.tenants.ResolveTenant(ctx, res.Subject)
	if errors.Is(err, tenant.ErrNotFound) && g.metadataFallback {
		if mc := tenant.FromClaims(res.Claims); mc != nil {
			return mc, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return tc, nil
}

func (g *Gateway) observe(d *Decision, start time.Time) {
	if g.metrics == nil {
		return
	}

	outcome := "deny"
	origin := ""
	if d.Allowed() {
		outcome = "allow"
		origin = string(d.Origin)
	}
	g.metrics.IncCounter("authgate_decisions_total", map[string]string{
		"outcome": outcome,
		"origin":  origin,
		"kind":    string(d.Kind),
	})
	g.metrics.ObserveHistogram("authgate_decision_seconds", time.Since(start).Seconds(), nil)
}

// traced runs fn inside a span when a tracer is wired.
func (g *Gateway) traced(name string, fn func()) {
	if g.tracer == nil {
		fn()
		return
	}
	span := g.tracer.StartSpan(name)
	defer span.Finish()
	fn()
}

func (g *Gateway) debugf(format string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Debugf(format, args...)
	}
}

func (g *Gateway) warnf(format string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Warnf(format, args...)
	}
}

func (g *Gateway) errorf(format string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Errorf(format, args...)
	}
}

// FailClosedHandler answers 503 for every request. It is mounted instead of
// the Gateway when required configuration is missing: verification is never
// silently skipped. The configuration problem is logged once at mount time,
// not per request.
func FailClosedHandler(confErr error, logger Logger) http.Handler {
	if logger != nil {
		logger.Errorf("authgate is failing closed: %v", confErr)
	}
	d := &Decision{
		Status:  KindConfigMissing.HTTPStatus(),
		Headers: http.Header{},
		Kind:    KindConfigMissing,
		Err:     confErr,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.Write(w)
	})
}
