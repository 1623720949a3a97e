package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/symphainy/authgate/jwks"
)

var (
	// ErrMalformed is returned when the token cannot be parsed at all, or is
	// structurally incomplete (no kid, no exp).
	ErrMalformed = errors.New("verifier: malformed token")

	// ErrAlgorithmMismatch is returned when the algorithm family the token
	// declares disagrees with the family of the key its kid resolved to.
	// This is a forgery signal, never an availability problem.
	ErrAlgorithmMismatch = errors.New("verifier: algorithm family mismatch")

	// ErrSignatureInvalid is returned when cryptographic verification fails.
	ErrSignatureInvalid = errors.New("verifier: signature invalid")

	// ErrExpired is returned when the token's expiry is not strictly in the
	// future.
	ErrExpired = errors.New("verifier: token expired")

	// ErrIssuerMismatch is returned when the configured issuer does not
	// match the token's iss claim exactly.
	ErrIssuerMismatch = errors.New("verifier: issuer mismatch")

	// ErrAudienceMismatch is returned when the configured audience is not
	// present in the token's aud claim.
	ErrAudienceMismatch = errors.New("verifier: audience mismatch")
)

// KeySource resolves a kid to a verification key. *jwks.Cache satisfies it;
// the lookup may force one key set refresh on a miss.
type KeySource interface {
	Key(ctx context.Context, kid string) (*jwks.SigningKey, error)
}

// Claims is the subset of token claims the gateway cares about, plus the raw
// claim map for anything provider-specific.
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time

	// UserMetadata and AppMetadata carry the identity provider's custom
	// claim namespaces. Used for tenant resolution fallback.
	UserMetadata map[string]any
	AppMetadata  map[string]any

	Raw map[string]any
}

// Result is a successful verification outcome.
type Result struct {
	Subject string
	Claims  *Claims
}

// Verifier checks token signatures and claims against a KeySource.
type Verifier struct {
	keys     KeySource
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// New builds a Verifier over the given key source.
func New(keys KeySource, opts ...Option) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("verifier: key source is required")
	}

	v := &Verifier{
		keys: keys,
		now:  time.Now,
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	return v, nil
}

// Verify checks the raw token and returns its subject and claims.
//
// Order of checks: structure, kid lookup (with one forced refresh on a miss),
// algorithm family against the resolved key, signature, then claims (expiry
// strictly in the future, issuer and audience if configured). Errors from the
// key source pass through untouched so the caller can distinguish rotation
// misses from issuer outages.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Result, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(v.leeway))
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(rawToken, claims, v.keyFunc(ctx))
	if err != nil {
		return nil, classify(err)
	}

	parsed := extractClaims(claims)
	if parsed.Subject == "" {
		return nil, fmt.Errorf("%w: no subject claim", ErrMalformed)
	}

	return &Result{Subject: parsed.Subject, Claims: parsed}, nil
}

// keyFunc resolves the token's kid through the key source and pins the
// verification routine to the resolved key's family. The routine is chosen by
// the key we hold, not by whatever algorithm the token announces; a token
// declaring RS256 against an EC key (or any HMAC algorithm) is rejected
// before a single signature byte is checked.
func (v *Verifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: no kid in header", ErrMalformed)
		}

		key, err := v.keys.Key(ctx, kid)
		if err != nil {
			return nil, err
		}

		var family jwks.Family
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
			family = jwks.FamilyRSA
		case *jwt.SigningMethodECDSA:
			family = jwks.FamilyEC
		default:
			return nil, fmt.Errorf("%w: token alg %q is not an asymmetric family",
				ErrAlgorithmMismatch, token.Header["alg"])
		}
		if family != key.Family {
			return nil, fmt.Errorf("%w: token alg %q but key %q is %s",
				ErrAlgorithmMismatch, token.Header["alg"], kid, key.Family)
		}

		return key.PublicKey(), nil
	}
}

// classify maps golang-jwt parse errors onto this package's sentinels.
// Key source errors and our own keyfunc sentinels already wrap the right
// sentinel and pass through as-is.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrMalformed),
		errors.Is(err, ErrAlgorithmMismatch),
		errors.Is(err, jwks.ErrKeyNotFound),
		errors.Is(err, jwks.ErrUnavailable):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrIssuerMismatch, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %v", ErrAudienceMismatch, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func extractClaims(claims jwt.MapClaims) *Claims {
	c := &Claims{Raw: claims}

	c.Subject, _ = claims["sub"].(string)
	c.Email, _ = claims["email"].(string)
	c.Issuer, _ = claims["iss"].(string)
	c.UserMetadata, _ = claims["user_metadata"].(map[string]any)
	c.AppMetadata, _ = claims["app_metadata"].(map[string]any)

	switch aud := claims["aud"].(type) {
	case string:
		c.Audience = []string{aud}
	case []any:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				c.Audience = append(c.Audience, s)
			}
		}
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}

	return c
}
