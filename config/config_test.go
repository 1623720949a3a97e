package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AUTHGATE_LISTEN_ADDR", "AUTHGATE_LOG_LEVEL",
		"AUTHGATE_JWKS_URL", "AUTHGATE_EXPECTED_ISSUER", "AUTHGATE_EXPECTED_AUDIENCE",
		"AUTHGATE_KEYSET_TTL", "AUTHGATE_SUPABASE_URL", "AUTHGATE_SUPABASE_ANON_KEY",
		"AUTHGATE_FALLBACK_TIMEOUT", "AUTHGATE_DATABASE_URL", "AUTHGATE_REDIS_ADDR",
		"AUTHGATE_TENANT_CACHE_TTL", "AUTHGATE_ENRICH_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func Test_Load(t *testing.T) {
	t.Run("loads a full local-plus-fallback configuration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AUTHGATE_JWKS_URL", "https://project.supabase.co/auth/v1/.well-known/jwks.json")
		t.Setenv("AUTHGATE_EXPECTED_ISSUER", "https://project.supabase.co/auth/v1")
		t.Setenv("AUTHGATE_SUPABASE_URL", "https://project.supabase.co")
		t.Setenv("AUTHGATE_SUPABASE_ANON_KEY", "anon-key")
		t.Setenv("AUTHGATE_KEYSET_TTL", "5m")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, ":4181", cfg.ListenAddr)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 5*time.Minute, cfg.KeySetTTL)
		assert.Equal(t, 2*time.Second, cfg.FallbackTimeout)
		assert.Equal(t, 30*time.Second, cfg.TenantCacheTTL)
		assert.True(t, cfg.LocalConfigured())
		assert.True(t, cfg.FallbackConfigured())
	})

	t.Run("fails validation with no verification path at all", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AUTHGATE_JWKS_URL")
		// The partial config still comes back for reporting.
		require.NotNil(t, cfg)
		assert.Equal(t, ":4181", cfg.ListenAddr)
	})

	t.Run("fallback URL without an anon key fails validation", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AUTHGATE_SUPABASE_URL", "https://project.supabase.co")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AUTHGATE_SUPABASE_ANON_KEY")
	})

	t.Run("fallback-only deployment is legal", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AUTHGATE_SUPABASE_URL", "https://project.supabase.co")
		t.Setenv("AUTHGATE_SUPABASE_ANON_KEY", "anon-key")

		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.LocalConfigured())
		assert.True(t, cfg.FallbackConfigured())
	})

	t.Run("rejects a malformed duration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AUTHGATE_JWKS_URL", "https://project.supabase.co/auth/v1/.well-known/jwks.json")
		t.Setenv("AUTHGATE_KEYSET_TTL", "not-a-duration")

		_, err := Load()
		assert.Error(t, err)
	})
}

func Test_Validate(t *testing.T) {
	t.Run("rejects non-positive durations", func(t *testing.T) {
		cfg := &Config{
			JWKSURL:         "https://project.supabase.co/auth/v1/.well-known/jwks.json",
			KeySetTTL:       0,
			FallbackTimeout: 2 * time.Second,
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AUTHGATE_KEYSET_TTL")
	})
}
