package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge

	// Access decision metrics
	AccessChecksTotal     *prometheus.CounterVec
	AccessCheckDuration   prometheus.Histogram
	EffectiveQueriesTotal prometheus.Counter

	// Decision cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Storage metrics
	StoreOperationsTotal *prometheus.CounterVec
	StoreOperationErrors *prometheus.CounterVec
	DBConnectionsOpen    prometheus.Gauge
	DBConnectionsIdle    prometheus.Gauge
	DBConnectionsInUse   prometheus.Gauge
	DBConnectionsWaiting prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics under the
// given namespace using the default registry.
func NewMetrics(namespace string) *Metrics {
	return newMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// newMetricsWithRegisterer exists so tests can use an isolated registry.
func newMetricsWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of HTTP requests currently being served",
			},
		),
		AccessChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_checks_total",
				Help:      "Total access check decisions by outcome",
			},
			[]string{"outcome"},
		),
		AccessCheckDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "access_check_duration_seconds",
				Help:      "Access check resolution duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
		EffectiveQueriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "effective_permission_queries_total",
				Help:      "Total effective permission set enumerations",
			},
		),
		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decision_cache_hits_total",
				Help:      "Total decision cache hits",
			},
		),
		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decision_cache_misses_total",
				Help:      "Total decision cache misses",
			},
		),
		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total storage operations by name",
			},
			[]string{"operation"},
		),
		StoreOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operation_errors_total",
				Help:      "Total storage operation failures by name",
			},
			[]string{"operation"},
		),
		DBConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_open",
				Help:      "Number of open database connections",
			},
		),
		DBConnectionsIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_idle",
				Help:      "Number of idle database connections",
			},
		),
		DBConnectionsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_in_use",
				Help:      "Number of database connections in use",
			},
		),
		DBConnectionsWaiting: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_waiting",
				Help:      "Cumulative goroutine waits for a database connection",
			},
		),
	}
}

// RecordAccessCheck records one access decision and its latency.
func (m *Metrics) RecordAccessCheck(allowed bool, duration time.Duration) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.AccessChecksTotal.WithLabelValues(outcome).Inc()
	m.AccessCheckDuration.Observe(duration.Seconds())
}

// RecordCacheHit counts a decision served from the cache.
func (m *Metrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss counts a cache lookup that fell through to the store.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

// RecordStoreOperation records a storage call, counting errors separately.
func (m *Metrics) RecordStoreOperation(operation string, err error) {
	m.StoreOperationsTotal.WithLabelValues(operation).Inc()
	if err != nil {
		m.StoreOperationErrors.WithLabelValues(operation).Inc()
	}
}

// CollectDBStats samples sql.DB pool statistics into the connection
// gauges.
func (m *Metrics) CollectDBStats(db *sql.DB) {
	stats := db.Stats()
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsWaiting.Set(float64(stats.WaitCount))
}

// StartDBStatsCollector samples the pool gauges immediately and then on
// every interval until the returned stop function is called. Stop is
// safe to call more than once.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		m.CollectDBStats(db)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.CollectDBStats(db)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// metricsResponseWriter captures the response status code
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	mrw.statusCode = code
	mrw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP handlers with request metrics.
// The gorilla/mux route template is used as the path label so that
// /v1/users/42/roles and /v1/users/7/roles share a series.
func (m *Metrics) HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsActive.Inc()
		defer m.HTTPRequestsActive.Dec()

		mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(mrw, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(mrw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RegisterMetricsEndpoint mounts the Prometheus scrape handler. It
// goes on the health listener so scraping bypasses auth.
func RegisterMetricsEndpoint(m *http.ServeMux) {
	m.Handle("/metrics", promhttp.Handler())
}
