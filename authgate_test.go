package authgate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symphainy/authgate/fallback"
	"github.com/symphainy/authgate/jwks"
	"github.com/symphainy/authgate/tenant"
	"github.com/symphainy/authgate/verifier"
)

// verifierFunc adapts a function to TokenVerifier.
type verifierFunc func(ctx context.Context, rawToken string) (*verifier.Result, error)

func (f verifierFunc) Verify(ctx context.Context, rawToken string) (*verifier.Result, error) {
	return f(ctx, rawToken)
}

// validatorFunc adapts a function to RemoteValidator and counts calls.
type fakeValidator struct {
	calls int
	res   *verifier.Result
	err   error
}

func (v *fakeValidator) Validate(_ context.Context, _ string) (*verifier.Result, error) {
	v.calls++
	return v.res, v.err
}

func okVerifier(subject string, claims *verifier.Claims) TokenVerifier {
	return verifierFunc(func(_ context.Context, _ string) (*verifier.Result, error) {
		return &verifier.Result{Subject: subject, Claims: claims}, nil
	})
}

func failingVerifier(err error) TokenVerifier {
	return verifierFunc(func(_ context.Context, _ string) (*verifier.Result, error) {
		return nil, err
	})
}

func staticResolver(tc *tenant.Context, err error) tenant.Resolver {
	return tenant.ResolverFunc(func(_ context.Context, _ string) (*tenant.Context, error) {
		return tc, err
	})
}

func doRequest(t *testing.T, g *Gateway, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/auth", nil)
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, r)
	return w
}

func denyBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func Test_New(t *testing.T) {
	t.Run("requires a verifier", func(t *testing.T) {
		_, err := New()
		assert.EqualError(t, err, "authgate: a token verifier is required (use WithVerifier)")
	})

	t.Run("surfaces option errors", func(t *testing.T) {
		_, err := New(WithVerifier(nil))
		assert.Error(t, err)

		_, err = New(WithVerifier(okVerifier("user-1", nil)), WithVerifierOrigin("carrier_pigeon"))
		assert.Error(t, err)
	})
}

func Test_DecideAllow(t *testing.T) {
	t.Run("valid token becomes 200 with the full header contract", func(t *testing.T) {
		g, err := New(
			WithVerifier(okVerifier("user-1", &verifier.Claims{Email: "ada@example.com"})),
			WithTenantResolver(staticResolver(&tenant.Context{
				TenantID:    "tenant-1",
				Type:        "organization",
				Roles:       []string{"admin", "member"},
				Permissions: []string{"projects:read"},
			}, nil)),
		)
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer good-token")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1", w.Header().Get(HeaderUserID))
		assert.Equal(t, "tenant-1", w.Header().Get(HeaderTenantID))
		assert.Equal(t, "organization", w.Header().Get(HeaderTenantType))
		assert.Equal(t, "ada@example.com", w.Header().Get(HeaderUserEmail))
		assert.Equal(t, "admin,member", w.Header().Get(HeaderRoles))
		assert.Equal(t, "projects:read", w.Header().Get(HeaderPermissions))
		assert.Equal(t, "local_jwks", w.Header().Get(HeaderAuthOrigin))
	})

	t.Run("tenant context from metadata when no store is configured", func(t *testing.T) {
		g, err := New(WithVerifier(okVerifier("user-1", &verifier.Claims{
			AppMetadata: map[string]any{"tenant_id": "tenant-7", "tenant_type": "individual"},
		})))
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer good-token")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "tenant-7", w.Header().Get(HeaderTenantID))
		assert.Equal(t, "individual", w.Header().Get(HeaderTenantType))
	})

	t.Run("store miss falls back to token metadata", func(t *testing.T) {
		g, err := New(
			WithVerifier(okVerifier("user-1", &verifier.Claims{
				UserMetadata: map[string]any{"tenant_id": "self-serve-tenant"},
			})),
			WithTenantResolver(staticResolver(nil, tenant.ErrNotFound)),
		)
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer good-token")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "self-serve-tenant", w.Header().Get(HeaderTenantID))
	})

	t.Run("store miss without metadata fallback denies", func(t *testing.T) {
		g, err := New(
			WithVerifier(okVerifier("user-1", &verifier.Claims{
				UserMetadata: map[string]any{"tenant_id": "self-serve-tenant"},
			})),
			WithTenantResolver(staticResolver(nil, tenant.ErrNotFound)),
			WithMetadataFallback(false),
		)
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer good-token")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "tenant_lookup_failed", denyBody(t, w))
	})
}

func Test_DecideDeny(t *testing.T) {
	t.Run("no authorization header answers 401 without identity headers", func(t *testing.T) {
		g, err := New(WithVerifier(okVerifier("user-1", nil)))
		require.NoError(t, err)

		w := doRequest(t, g, "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "missing_token", denyBody(t, w))
		for _, name := range []string{
			HeaderUserID, HeaderTenantID, HeaderTenantType, HeaderUserEmail,
			HeaderRoles, HeaderPermissions, HeaderAuthOrigin,
		} {
			assert.Empty(t, w.Header().Get(name), name)
		}
	})

	t.Run("malformed authorization header answers 401", func(t *testing.T) {
		g, err := New(WithVerifier(okVerifier("user-1", nil)))
		require.NoError(t, err)

		w := doRequest(t, g, "Basic dXNlcjpwYXNz")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "missing_token", denyBody(t, w))
	})

	t.Run("expired token is distinguishable from a missing one", func(t *testing.T) {
		g, err := New(WithVerifier(failingVerifier(verifier.ErrExpired)))
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer expired-token")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "token_expired", denyBody(t, w))
	})

	t.Run("tenant store outage answers 503", func(t *testing.T) {
		g, err := New(
			WithVerifier(okVerifier("user-1", nil)),
			WithTenantResolver(staticResolver(nil, tenant.ErrLookupFailed)),
		)
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer good-token")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "tenant_lookup_failed", denyBody(t, w))
		assert.Empty(t, w.Header().Get(HeaderUserID))
	})

	t.Run("slow tenant store is cut off by the enrichment deadline", func(t *testing.T) {
		slow := tenant.ResolverFunc(func(ctx context.Context, _ string) (*tenant.Context, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return &tenant.Context{TenantID: "too-late"}, nil
			}
		})
		g, err := New(
			WithVerifier(okVerifier("user-1", nil)),
			WithTenantResolver(slow),
			WithEnrichTimeout(30*time.Millisecond),
		)
		require.NoError(t, err)

		start := time.Now()
		w := doRequest(t, g, "Bearer good-token")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func Test_DecideFallback(t *testing.T) {
	t.Run("availability failure is answered by the provider directly", func(t *testing.T) {
		remote := &fakeValidator{res: &verifier.Result{
			Subject: "user-9",
			Claims: &verifier.Claims{
				Email:       "remote@example.com",
				AppMetadata: map[string]any{"tenant_id": "tenant-9"},
			},
		}}
		g, err := New(
			WithVerifier(failingVerifier(jwks.ErrUnavailable)),
			WithFallback(remote),
		)
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer token")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, remote.calls)
		assert.Equal(t, "user-9", w.Header().Get(HeaderUserID))
		assert.Equal(t, "supabase_direct", w.Header().Get(HeaderAuthOrigin))
	})

	t.Run("unknown kid after refresh also routes to the provider", func(t *testing.T) {
		remote := &fakeValidator{res: &verifier.Result{Subject: "user-9", Claims: &verifier.Claims{
			AppMetadata: map[string]any{"tenant_id": "tenant-9"},
		}}}
		g, err := New(
			WithVerifier(failingVerifier(fmt.Errorf("resolving key: %w", jwks.ErrKeyNotFound))),
			WithFallback(remote),
		)
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer token")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, remote.calls)
	})

	t.Run("cryptographic failures never reach the provider", func(t *testing.T) {
		for _, verr := range []error{
			verifier.ErrSignatureInvalid,
			verifier.ErrExpired,
			verifier.ErrAlgorithmMismatch,
			verifier.ErrMalformed,
			verifier.ErrIssuerMismatch,
			verifier.ErrAudienceMismatch,
		} {
			remote := &fakeValidator{res: &verifier.Result{Subject: "user-9"}}
			g, err := New(
				WithVerifier(failingVerifier(verr)),
				WithFallback(remote),
			)
			require.NoError(t, err)

			w := doRequest(t, g, "Bearer token")

			assert.Equal(t, http.StatusUnauthorized, w.Code, verr.Error())
			assert.Zero(t, remote.calls, verr.Error())
		}
	})

	t.Run("provider rejection answers 401", func(t *testing.T) {
		remote := &fakeValidator{err: fallback.ErrTokenRejected}
		g, err := New(
			WithVerifier(failingVerifier(jwks.ErrUnavailable)),
			WithFallback(remote),
		)
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer token")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "token_rejected_by_provider", denyBody(t, w))
	})

	t.Run("provider outage answers 503", func(t *testing.T) {
		remote := &fakeValidator{err: fallback.ErrUnavailable}
		g, err := New(
			WithVerifier(failingVerifier(jwks.ErrUnavailable)),
			WithFallback(remote),
		)
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer token")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "service_unavailable", denyBody(t, w))
	})

	t.Run("network validator as primary verifier reports its own origin", func(t *testing.T) {
		// Deployments without a JWKS URL wire the provider client as the
		// primary verifier; the proxy must still see supabase_direct.
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{
				"id": "user-9",
				"email": "remote@example.com",
				"app_metadata": {"tenant_id": "tenant-9"}
			}`))
		}))
		defer server.Close()

		fb, err := fallback.NewClient(server.URL, "anon-key")
		require.NoError(t, err)

		g, err := New(
			WithVerifier(verifierFunc(fb.Validate)),
			WithVerifierOrigin(OriginSupabaseDirect),
		)
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer token")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-9", w.Header().Get(HeaderUserID))
		assert.Equal(t, "supabase_direct", w.Header().Get(HeaderAuthOrigin))
	})

	t.Run("availability failure without a configured fallback answers 503", func(t *testing.T) {
		g, err := New(WithVerifier(failingVerifier(jwks.ErrUnavailable)))
		require.NoError(t, err)

		w := doRequest(t, g, "Bearer token")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "jwks_unavailable", denyBody(t, w))
	})
}

func Test_DecideObservability(t *testing.T) {
	t.Run("records a decision counter and latency", func(t *testing.T) {
		metrics := &recordingMetrics{}
		g, err := New(
			WithVerifier(okVerifier("user-1", &verifier.Claims{
				AppMetadata: map[string]any{"tenant_id": "tenant-1"},
			})),
			WithMetrics(metrics),
		)
		require.NoError(t, err)

		doRequest(t, g, "Bearer good-token")

		require.Len(t, metrics.counters, 1)
		assert.Equal(t, "authgate_decisions_total", metrics.counters[0].name)
		assert.Equal(t, "allow", metrics.counters[0].labels["outcome"])
		assert.Equal(t, "local_jwks", metrics.counters[0].labels["origin"])
		require.Len(t, metrics.histograms, 1)
		assert.Equal(t, "authgate_decision_seconds", metrics.histograms[0].name)
	})

	t.Run("labels deny decisions with their kind", func(t *testing.T) {
		metrics := &recordingMetrics{}
		g, err := New(
			WithVerifier(failingVerifier(verifier.ErrExpired)),
			WithMetrics(metrics),
		)
		require.NoError(t, err)

		doRequest(t, g, "Bearer expired-token")

		require.Len(t, metrics.counters, 1)
		assert.Equal(t, "deny", metrics.counters[0].labels["outcome"])
		assert.Equal(t, "token_expired", metrics.counters[0].labels["kind"])
	})
}

func Test_FailClosedHandler(t *testing.T) {
	h := FailClosedHandler(fmt.Errorf("no key source configured"), nil)

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "/auth", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Empty(t, w.Header().Get(HeaderUserID))

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "configuration_missing", body["error"])
	}
}
