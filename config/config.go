// Package config loads the gateway's configuration from the environment.
//
// Configuration problems fail closed: the service still starts, but every
// request is answered 503 until the environment is fixed. Verification is
// never silently skipped.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full environment surface of the gateway.
type Config struct {
	ListenAddr string `env:"AUTHGATE_LISTEN_ADDR,default=:4181"`
	LogLevel   string `env:"AUTHGATE_LOG_LEVEL,default=info"`

	// Local verification.
	JWKSURL          string        `env:"AUTHGATE_JWKS_URL"`
	ExpectedIssuer   string        `env:"AUTHGATE_EXPECTED_ISSUER"`
	ExpectedAudience string        `env:"AUTHGATE_EXPECTED_AUDIENCE"`
	KeySetTTL        time.Duration `env:"AUTHGATE_KEYSET_TTL,default=600s"`

	// Network fallback.
	SupabaseURL     string        `env:"AUTHGATE_SUPABASE_URL"`
	SupabaseAnonKey string        `env:"AUTHGATE_SUPABASE_ANON_KEY"`
	FallbackTimeout time.Duration `env:"AUTHGATE_FALLBACK_TIMEOUT,default=2s"`

	// Tenant enrichment.
	DatabaseURL    string        `env:"AUTHGATE_DATABASE_URL"`
	RedisAddr      string        `env:"AUTHGATE_REDIS_ADDR"`
	TenantCacheTTL time.Duration `env:"AUTHGATE_TENANT_CACHE_TTL,default=30s"`
	EnrichTimeout  time.Duration `env:"AUTHGATE_ENRICH_TIMEOUT,default=2s"`
}

// Load decodes the configuration from the environment and validates it.
// The decoded Config is returned even when validation fails, so the caller
// can report what it did find.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		// envdecode only errors on required fields; everything here has a
		// default or is optional, so this is a malformed value.
		return &cfg, fmt.Errorf("config: %w", err)
	}

	return &cfg, cfg.Validate()
}

// Validate checks that at least one verification path is fully configured.
// Local JWKS verification is the expected mode; fallback-only is a legal
// degraded deployment.
func (c *Config) Validate() error {
	var missing []string

	if c.JWKSURL == "" && c.SupabaseURL == "" {
		missing = append(missing, "AUTHGATE_JWKS_URL (or AUTHGATE_SUPABASE_URL)")
	}
	if c.SupabaseURL != "" && c.SupabaseAnonKey == "" {
		missing = append(missing, "AUTHGATE_SUPABASE_ANON_KEY")
	}
	if c.KeySetTTL <= 0 {
		missing = append(missing, "AUTHGATE_KEYSET_TTL (must be positive)")
	}
	if c.FallbackTimeout <= 0 {
		missing = append(missing, "AUTHGATE_FALLBACK_TIMEOUT (must be positive)")
	}

	if len(missing) > 0 {
		return fmt.Errorf("config: missing or invalid: %s", strings.Join(missing, ", "))
	}
	return nil
}

// FallbackConfigured reports whether the direct provider validation path can
// be built.
func (c *Config) FallbackConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

// LocalConfigured reports whether offline JWKS verification can be built.
func (c *Config) LocalConfigured() bool {
	return c.JWKSURL != ""
}
