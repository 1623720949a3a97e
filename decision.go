package authgate

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/symphainy/authgate/tenant"
	"github.com/symphainy/authgate/verifier"
)

// Origin names the verification path that produced an allow decision.
type Origin string

const (
	// OriginLocalJWKS marks tokens verified offline against cached key
	// material.
	OriginLocalJWKS = Origin("local_jwks")
	// OriginSupabaseDirect marks tokens validated by the network fallback.
	OriginSupabaseDirect = Origin("supabase_direct")
)

// Header names of the proxy contract. The proxy copies these onto the
// original request before forwarding it to the backend.
const (
	HeaderUserID      = "X-User-Id"
	HeaderTenantID    = "X-Tenant-Id"
	HeaderTenantType  = "X-Tenant-Type"
	HeaderUserEmail   = "X-User-Email"
	HeaderRoles       = "X-User-Roles"
	HeaderPermissions = "X-User-Permissions"
	HeaderAuthOrigin  = "X-Auth-Origin"
)

// Decision is the final, immutable outcome of one forward-auth request:
// either 200 with the identity headers, or a terminal status with none.
type Decision struct {
	Status  int
	Headers http.Header

	// Origin is set on allow decisions only.
	Origin Origin

	// Kind and Err describe deny decisions. Kind is also written in the
	// response body so callers can distinguish, say, an expired token from
	// a missing one without parsing logs.
	Kind Kind
	Err  error
}

// Allowed reports whether the decision admits the request.
func (d *Decision) Allowed() bool {
	return d.Status == http.StatusOK
}

// Write emits the decision on the proxy-facing response.
func (d *Decision) Write(w http.ResponseWriter) {
	for name, values := range d.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}

	if d.Allowed() {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": string(d.Kind)})
}

// allow builds the success decision carrying the identity header contract.
func allow(res *verifier.Result, tc *tenant.Context, origin Origin) *Decision {
	h := http.Header{}
	h.Set(HeaderUserID, res.Subject)
	h.Set(HeaderAuthOrigin, string(origin))

	if res.Claims != nil && res.Claims.Email != "" {
		h.Set(HeaderUserEmail, res.Claims.Email)
	}
	if tc != nil {
		h.Set(HeaderTenantID, tc.TenantID)
		if tc.Type != "" {
			h.Set(HeaderTenantType, tc.Type)
		}
		h.Set(HeaderRoles, strings.Join(tc.Roles, ","))
		h.Set(HeaderPermissions, strings.Join(tc.Permissions, ","))
	}

	return &Decision{
		Status:  http.StatusOK,
		Headers: h,
		Origin:  origin,
	}
}

// deny builds a terminal decision from a pipeline error. No identity headers
// are ever attached to a deny.
func deny(err error) *Decision {
	kind := KindOf(err)
	return &Decision{
		Status:  kind.HTTPStatus(),
		Headers: http.Header{},
		Kind:    kind,
		Err:     err,
	}
}
