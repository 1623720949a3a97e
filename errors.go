package authgate

import (
	"context"
	"errors"
	"net/http"

	"github.com/symphainy/authgate/fallback"
	"github.com/symphainy/authgate/jwks"
	"github.com/symphainy/authgate/tenant"
	"github.com/symphainy/authgate/verifier"
)

// Kind classifies every way a request can fail to become an allow decision.
// The split matters operationally: client-caused kinds answer 401 and are
// never retried anywhere, availability kinds answer 503 so the proxy can
// tell "you are unauthorized" from "the system is degraded".
type Kind string

const (
	KindMissingToken       = Kind("missing_token")
	KindMalformed          = Kind("malformed_token")
	KindKeyNotFound        = Kind("key_not_found")
	KindAlgorithmMismatch  = Kind("algorithm_mismatch")
	KindSignatureInvalid   = Kind("signature_invalid")
	KindExpired            = Kind("token_expired")
	KindIssuerMismatch     = Kind("issuer_mismatch")
	KindAudienceMismatch   = Kind("audience_mismatch")
	KindJWKSUnavailable    = Kind("jwks_unavailable")
	KindServiceUnavailable = Kind("service_unavailable")
	KindTokenRejected      = Kind("token_rejected_by_provider")
	KindTenantLookupFailed = Kind("tenant_lookup_failed")
	KindConfigMissing      = Kind("configuration_missing")
	KindInternal           = Kind("internal")
)

// ErrMissingToken is returned when the Authorization header is absent or not
// a Bearer credential. Terminal; the fallback path is never attempted.
var ErrMissingToken = errors.New("authgate: missing or malformed bearer token")

// HTTPStatus maps a kind onto the proxy contract's status codes.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindMissingToken, KindMalformed, KindKeyNotFound, KindAlgorithmMismatch,
		KindSignatureInvalid, KindExpired, KindIssuerMismatch, KindAudienceMismatch,
		KindTokenRejected:
		return http.StatusUnauthorized
	case KindJWKSUnavailable, KindServiceUnavailable, KindTenantLookupFailed,
		KindConfigMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fallbackEligible reports whether a local verification failure may be
// answered by the network validator instead. Only availability-class
// failures qualify; a bad signature is never "maybe valid over the network".
func (k Kind) fallbackEligible() bool {
	switch k {
	case KindJWKSUnavailable, KindKeyNotFound, KindServiceUnavailable:
		return true
	}
	return false
}

// KindOf classifies an error from any stage of the decision pipeline.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrMissingToken):
		return KindMissingToken
	case errors.Is(err, verifier.ErrAlgorithmMismatch):
		return KindAlgorithmMismatch
	case errors.Is(err, verifier.ErrSignatureInvalid):
		return KindSignatureInvalid
	case errors.Is(err, verifier.ErrExpired):
		return KindExpired
	case errors.Is(err, verifier.ErrIssuerMismatch):
		return KindIssuerMismatch
	case errors.Is(err, verifier.ErrAudienceMismatch):
		return KindAudienceMismatch
	case errors.Is(err, verifier.ErrMalformed):
		return KindMalformed
	case errors.Is(err, jwks.ErrKeyNotFound):
		return KindKeyNotFound
	case errors.Is(err, jwks.ErrUnavailable):
		return KindJWKSUnavailable
	case errors.Is(err, fallback.ErrTokenRejected):
		return KindTokenRejected
	case errors.Is(err, fallback.ErrUnavailable):
		return KindServiceUnavailable
	case errors.Is(err, tenant.ErrLookupFailed), errors.Is(err, tenant.ErrNotFound):
		return KindTenantLookupFailed
	case errors.Is(err, context.DeadlineExceeded):
		return KindServiceUnavailable
	default:
		return KindInternal
	}
}
