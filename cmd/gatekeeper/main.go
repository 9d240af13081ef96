package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lmskit/gatekeeper/pkg/api"
	"github.com/lmskit/gatekeeper/pkg/audit"
	"github.com/lmskit/gatekeeper/pkg/auth"
	"github.com/lmskit/gatekeeper/pkg/config"
	"github.com/lmskit/gatekeeper/pkg/httputil"
	"github.com/lmskit/gatekeeper/pkg/middleware"
	"github.com/lmskit/gatekeeper/pkg/observability"
	"github.com/lmskit/gatekeeper/pkg/permissions"
	"github.com/lmskit/gatekeeper/pkg/storage"
)

const serviceVersion = "0.1.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithFields(map[string]interface{}{
		"version": serviceVersion,
		"port":    cfg.Server.Port,
	}).Info("starting gatekeeper")

	ctx := context.Background()

	db, err := storage.OpenDatabase(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}

	if err := permissions.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	sqlStore := permissions.NewSQLStore(db)
	if err := permissions.Seed(ctx, sqlStore); err != nil {
		logger.WithError(err).Error("failed to seed permission catalog")
		os.Exit(1)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics("gatekeeper")
	}

	// The catalog changes rarely; keep it in-process in front of the
	// database.
	var base permissions.Store = sqlStore
	if metrics != nil {
		base = permissions.NewInstrumentedStore(base, metrics)
	}
	store := permissions.NewCatalogCache(base, 256, 5*time.Minute)

	var redisClient *redis.Client
	var cache *permissions.DecisionCache
	if cfg.Storage.CacheEnabled {
		redisClient, err = storage.OpenRedis(ctx, cfg.Storage)
		if err != nil {
			// The engine answers from the database without a cache.
			logger.WithError(err).Warn("redis unavailable, running without decision cache")
			redisClient = nil
		} else {
			cache = permissions.NewDecisionCache(redisClient, cfg.Storage.CacheTTL)
			if metrics != nil {
				cache.WithStats(metrics)
			}
		}
	}

	engineOpts := []permissions.EngineOption{}
	if cache != nil {
		engineOpts = append(engineOpts, permissions.WithDecisionCache(cache))
	}
	engine := permissions.NewEngine(store, engineOpts...)
	admin := permissions.NewAdmin(store, cache)
	tokens := auth.NewTokenStore(db)
	recorder := audit.NewRecorder(db)

	var resolver middleware.IdentityResolver
	if cfg.Auth.OIDCEnabled {
		oidcResolver, err := auth.NewOIDCResolver(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			logger.WithError(err).Error("failed to initialize OIDC resolver")
			os.Exit(1)
		}
		resolver = oidcResolver
	}

	var tracerShutdown func(context.Context) error
	if cfg.Observability.TracingEnabled {
		tp, err := observability.InitTracing(ctx, observability.TracingConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.TracingEndpoint,
			ServiceName:    cfg.Observability.ServiceName,
			ServiceVersion: serviceVersion,
			Insecure:       cfg.Observability.TracingInsecure,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("failed to initialize tracing")
			os.Exit(1)
		}
		if tp != nil {
			tracerShutdown = func(ctx context.Context) error {
				return observability.ShutdownTracing(ctx, tp, logger)
			}
		}
	}

	var authTokens *auth.TokenStore
	if cfg.Auth.TokensEnabled {
		authTokens = tokens
	}
	mw := api.Middleware{
		Authenticate:      middleware.NewAuthMiddleware(authTokens, resolver, store, admin, logger).Handler,
		RequirePermission: middleware.NewPermissionMiddleware(engine, recorder, logger).Require,
		Observe: []func(http.Handler) http.Handler{
			httputil.RequestIDMiddleware,
			httputil.LoggingMiddleware(logger),
			httputil.RecoveryMiddleware(logger),
		},
	}
	if cfg.Server.MaxBodyBytes > 0 {
		mw.Observe = append(mw.Observe, httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes))
	}
	if redisClient != nil {
		mw.RateLimit = middleware.NewRateLimitMiddleware(redisClient, logger).Handler
	}

	var stopDBStats func()
	if metrics != nil {
		stopDBStats = metrics.StartDBStatsCollector(db, 15*time.Second)
		mw.Observe = append([]func(http.Handler) http.Handler{metrics.HTTPMetricsMiddleware}, mw.Observe...)
	}

	server := api.NewServer(api.Deps{
		Store:    store,
		Engine:   engine,
		Admin:    admin,
		Tokens:   tokens,
		Recorder: recorder,
		Logger:   logger,
		Metrics:  metrics,
		Mw:       mw,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Probes and metrics listen on their own port so they stay
	// reachable when the API port is saturated.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, serviceVersion))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	sm := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	sm.RegisterServer("api", apiServer)
	sm.RegisterServer("health", healthServer)
	sm.RegisterShutdownFunc("database", func(ctx context.Context) error { return db.Close() })
	if stopDBStats != nil {
		sm.RegisterShutdownFunc("db-stats", func(ctx context.Context) error {
			stopDBStats()
			return nil
		})
	}
	if redisClient != nil {
		sm.RegisterShutdownFunc("redis", func(ctx context.Context) error { return redisClient.Close() })
	}
	if tracerShutdown != nil {
		sm.RegisterShutdownFunc("tracing", tracerShutdown)
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("api server failed")
			os.Exit(1)
		}
	}()

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
