package verifier

import (
	"errors"
	"time"
)

// Option configures a Verifier.
type Option func(*Verifier) error

// WithIssuer enables exact-match validation of the iss claim.
// When empty (the default), the issuer claim is not checked.
func WithIssuer(issuer string) Option {
	return func(v *Verifier) error {
		v.issuer = issuer
		return nil
	}
}

// WithAudience enables validation of the aud claim. The token must list the
// configured audience. When empty (the default), the audience is not checked.
func WithAudience(audience string) Option {
	return func(v *Verifier) error {
		v.audience = audience
		return nil
	}
}

// WithLeeway allows a clock skew tolerance for time-based claims.
//
// Default: zero (expiry must be strictly in the future).
func WithLeeway(leeway time.Duration) Option {
	return func(v *Verifier) error {
		if leeway < 0 {
			return errors.New("leeway cannot be negative")
		}
		v.leeway = leeway
		return nil
	}
}

// WithClock overrides the time source used for claim validation. Used in
// tests to pin verification time.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		v.now = now
		return nil
	}
}
