// Package observability bundles the operational concerns of the
// service: structured logging, Prometheus metrics, health probes,
// OTLP trace export, and coordinated graceful shutdown.
//
// # Logging
//
// Logger wraps stdlib slog with a JSON handler and a chainable field
// API:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithFields(map[string]interface{}{
//		"user_id": 42,
//	}).Info("access granted")
//
// Request-scoped loggers travel in the context; FromContext rebuilds
// one carrying the request ID and user ID recorded by the middleware.
//
// # Metrics
//
// NewMetrics registers counters, histograms, and gauges covering HTTP
// traffic, access decisions, the decision cache, and the database
// pool. HTTPMetricsMiddleware instruments a gorilla/mux router and
// RegisterMetricsEndpoint exposes the scrape handler.
//
// # Health
//
// HealthChecker serves liveness and readiness probes. The database is
// a hard dependency; a lost Redis only degrades the status because
// access checks fall back to the database.
//
// # Shutdown
//
// ShutdownManager drains registered HTTP servers and then closes
// registered resources in parallel, bounded by a timeout.
package observability
