// Package tenant resolves a verified subject into its tenant-scoped
// authorization context: tenant id, roles, and permissions. The gateway only
// attaches what this package reports; it never evaluates policy itself.
package tenant

import (
	"context"
	"errors"

	"github.com/symphainy/authgate/verifier"
)

var (
	// ErrNotFound is returned when the subject has no tenant membership in
	// the store. Callers may fall back to token metadata.
	ErrNotFound = errors.New("tenant: no tenant for subject")

	// ErrLookupFailed is returned when the store could not be consulted.
	// The identity is still valid; the authorization context is not
	// obtainable, which is an availability failure, not a rejection.
	ErrLookupFailed = errors.New("tenant: lookup failed")
)

// Context is the authorization context of one subject within its tenant.
type Context struct {
	TenantID    string   `json:"tenant_id"`
	Type        string   `json:"tenant_type"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Resolver resolves a subject id into its tenant context. Implementations
// may be remote and slow; callers bound them with a context deadline.
type Resolver interface {
	ResolveTenant(ctx context.Context, subject string) (*Context, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, subject string) (*Context, error)

func (f ResolverFunc) ResolveTenant(ctx context.Context, subject string) (*Context, error) {
	return f(ctx, subject)
}

// FromClaims builds a tenant context out of the token's metadata claims.
// This is the last-resort source used when the store has no row for the
// subject: self-service accounts carry their tenant in user_metadata until
// provisioning lands.
func FromClaims(claims *verifier.Claims) *Context {
	if claims == nil {
		return nil
	}

	tc := &Context{Type: "individual"}

	read := func(meta map[string]any) {
		if meta == nil {
			return
		}
		if v, ok := meta["tenant_id"].(string); ok && tc.TenantID == "" {
			tc.TenantID = v
		}
		if v, ok := meta["tenant_type"].(string); ok && v != "" {
			tc.Type = v
		}
		tc.Roles = appendStrings(tc.Roles, meta["roles"])
		tc.Permissions = appendStrings(tc.Permissions, meta["permissions"])
	}

	// app_metadata is provider-controlled and wins over user_metadata.
	read(claims.AppMetadata)
	read(claims.UserMetadata)

	if tc.TenantID == "" {
		return nil
	}
	return tc
}

func appendStrings(dst []string, v any) []string {
	items, ok := v.([]any)
	if !ok {
		return dst
	}
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, item := range items {
		if s, ok := item.(string); ok && !seen[s] {
			dst = append(dst, s)
			seen[s] = true
		}
	}
	return dst
}
