// Command authgate runs the forward-auth gateway.
//
// The reverse proxy sends every inbound request to /auth; the gateway
// answers 200 with identity headers or a terminal 401/503. /healthz reports
// key set freshness and /metrics exposes prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/symphainy/authgate"
	"github.com/symphainy/authgate/config"
	"github.com/symphainy/authgate/fallback"
	"github.com/symphainy/authgate/jwks"
	"github.com/symphainy/authgate/tenant"
	"github.com/symphainy/authgate/verifier"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configCheck := flag.Bool("config-check", false, "validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("authgate", version)
		return
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, cfgErr := config.Load()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	if *configCheck {
		if cfgErr != nil {
			log.WithError(cfgErr).Fatal("configuration invalid")
		}
		log.Info("configuration ok")
		return
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	if cfgErr != nil {
		// Fail closed: serve 503 on the auth surface until the environment
		// is fixed, rather than letting unverified traffic through or
		// crash-looping under the proxy.
		h := authgate.FailClosedHandler(cfgErr, authgate.NewLogrusLogger(log))
		e.Any("/auth", echo.WrapHandler(h))
		e.Any("/auth/*", echo.WrapHandler(h))
		e.GET("/healthz", func(c echo.Context) error {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "configuration_missing",
				"error":  cfgErr.Error(),
			})
		})
		serve(e, cfg.ListenAddr, log)
		return
	}

	gw, cache, cleanup, err := buildGateway(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("could not build gateway")
	}
	defer cleanup()

	if cache != nil {
		registerKeysetGauges(cache)
	}

	e.Any("/auth", echo.WrapHandler(gw.Handler()))
	e.Any("/auth/*", echo.WrapHandler(gw.Handler()))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", healthHandler(cache))

	serve(e, cfg.ListenAddr, log)
}

// buildGateway wires the verification pipeline out of the validated config.
func buildGateway(cfg *config.Config, log *logrus.Logger) (*authgate.Gateway, *jwks.Cache, func(), error) {
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	opts := []authgate.Option{
		authgate.WithLogger(authgate.NewLogrusLogger(log)),
		authgate.WithMetrics(authgate.NewPrometheusMetrics()),
		authgate.WithEnrichTimeout(cfg.EnrichTimeout),
	}

	var cache *jwks.Cache
	if cfg.LocalConfigured() {
		var err error
		cache, err = jwks.NewCache(
			jwks.WithSourceURL(cfg.JWKSURL),
			jwks.WithIssuer(cfg.ExpectedIssuer),
			jwks.WithTTL(cfg.KeySetTTL),
		)
		if err != nil {
			return nil, nil, cleanup, err
		}

		verifierOpts := []verifier.Option{}
		if cfg.ExpectedIssuer != "" {
			verifierOpts = append(verifierOpts, verifier.WithIssuer(cfg.ExpectedIssuer))
		}
		if cfg.ExpectedAudience != "" {
			verifierOpts = append(verifierOpts, verifier.WithAudience(cfg.ExpectedAudience))
		}
		v, err := verifier.New(cache, verifierOpts...)
		if err != nil {
			return nil, nil, cleanup, err
		}
		opts = append(opts, authgate.WithVerifier(v))

		// Warm the cache so the first proxied request does not pay for the
		// initial fetch. Failure is tolerable; the fallback path covers it.
		warmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := cache.Refresh(warmCtx); err != nil {
			log.WithError(err).Warn("initial JWKS fetch failed, continuing")
		}
		cancel()
	}

	if cfg.FallbackConfigured() {
		fb, err := fallback.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey,
			fallback.WithTimeout(cfg.FallbackTimeout))
		if err != nil {
			return nil, nil, cleanup, err
		}
		if cfg.LocalConfigured() {
			opts = append(opts, authgate.WithFallback(fb))
		} else {
			// Fallback-only deployment: the network validator is the
			// primary verifier, and its decisions must say so.
			opts = append(opts,
				authgate.WithVerifier(remoteAsVerifier{fb}),
				authgate.WithVerifierOrigin(authgate.OriginSupabaseDirect))
		}
	}

	resolver, err := buildResolver(cfg, &cleanups)
	if err != nil {
		return nil, nil, cleanup, err
	}
	if resolver != nil {
		opts = append(opts, authgate.WithTenantResolver(resolver))
	}

	gw, err := authgate.New(opts...)
	return gw, cache, cleanup, err
}

// buildResolver assembles the enrichment chain: pgx store, wrapped by the
// in-process cache, optionally shared across replicas via redis.
func buildResolver(cfg *config.Config, cleanups *[]func()) (tenant.Resolver, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil // Metadata-only enrichment.
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("tenant store: %w", err)
	}
	*cleanups = append(*cleanups, pool.Close)

	var resolver tenant.Resolver
	resolver, err = tenant.NewSQLStore(pool)
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		*cleanups = append(*cleanups, func() { _ = rdb.Close() })
		resolver, err = tenant.NewRedisCached(resolver, rdb, cfg.TenantCacheTTL)
		if err != nil {
			return nil, err
		}
	}

	return tenant.NewCached(resolver, cfg.TenantCacheTTL)
}

// remoteAsVerifier lets a fallback client stand in as the primary verifier
// for deployments without a JWKS URL.
type remoteAsVerifier struct {
	client *fallback.Client
}

func (r remoteAsVerifier) Verify(ctx context.Context, rawToken string) (*verifier.Result, error) {
	return r.client.Validate(ctx, rawToken)
}

// registerKeysetGauges exposes key set freshness on /metrics so rotation
// problems show up before tokens start failing.
func registerKeysetGauges(cache *jwks.Cache) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "authgate_keyset_age_seconds",
		Help: "Age of the cached JWKS key set.",
	}, func() float64 {
		return cache.Status().Age.Seconds()
	}))
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "authgate_keyset_keys",
		Help: "Number of keys in the cached JWKS key set.",
	}, func() float64 {
		return float64(cache.Status().KeyCount)
	}))
}

func healthHandler(cache *jwks.Cache) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := map[string]any{"status": "ok", "version": version}
		if cache != nil {
			st := cache.Status()
			body["jwks"] = st
			if st.KeyCount == 0 {
				body["status"] = "degraded"
			}
		}
		return c.JSON(http.StatusOK, body)
	}
}

func serve(e *echo.Echo, addr string, log *logrus.Logger) {
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped")
		}
	}()
	log.WithField("addr", addr).Info("authgate listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
}
