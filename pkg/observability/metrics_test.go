package observability

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return newMetricsWithRegisterer("gatekeeper_test", prometheus.NewRegistry())
}

func TestRecordAccessCheck(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordAccessCheck(true, 2*time.Millisecond)
	m.RecordAccessCheck(true, time.Millisecond)
	m.RecordAccessCheck(false, time.Millisecond)

	allowed := testutil.ToFloat64(m.AccessChecksTotal.WithLabelValues("allowed"))
	if allowed != 2 {
		t.Errorf("expected 2 allowed checks, got %v", allowed)
	}
	denied := testutil.ToFloat64(m.AccessChecksTotal.WithLabelValues("denied"))
	if denied != 1 {
		t.Errorf("expected 1 denied check, got %v", denied)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordStoreOperation("GetUser", nil)
	m.RecordStoreOperation("GetUser", http.ErrServerClosed)

	total := testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("GetUser"))
	if total != 2 {
		t.Errorf("expected 2 operations, got %v", total)
	}
	errs := testutil.ToFloat64(m.StoreOperationErrors.WithLabelValues("GetUser"))
	if errs != 1 {
		t.Errorf("expected 1 error, got %v", errs)
	}
}

func TestRecordCacheOutcomes(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	if hits := testutil.ToFloat64(m.CacheHitsTotal); hits != 2 {
		t.Errorf("expected 2 hits, got %v", hits)
	}
	if misses := testutil.ToFloat64(m.CacheMissesTotal); misses != 1 {
		t.Errorf("expected 1 miss, got %v", misses)
	}
}

func TestStartDBStatsCollector(t *testing.T) {
	m := newTestMetrics(t)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	stop := m.StartDBStatsCollector(db, 5*time.Millisecond)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.DBConnectionsOpen) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected open connection gauge to reach 1, got %v",
				testutil.ToFloat64(m.DBConnectionsOpen))
		}
		time.Sleep(time.Millisecond)
	}

	// Stopping twice is fine.
	stop()
	stop()
}

func TestHTTPMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	m := newTestMetrics(t)

	router := mux.NewRouter()
	router.Use(m.HTTPMetricsMiddleware)
	router.HandleFunc("/v1/users/{id}/roles", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	for _, path := range []string{"/v1/users/42/roles", "/v1/users/7/roles"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, rec.Code)
		}
	}

	// Both requests collapse onto the route template series.
	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/users/{id}/roles", "200"))
	if count != 2 {
		t.Errorf("expected 2 requests on the template series, got %v", count)
	}
}

func TestHTTPMetricsMiddlewareRecordsStatus(t *testing.T) {
	m := newTestMetrics(t)

	router := mux.NewRouter()
	router.Use(m.HTTPMetricsMiddleware)
	router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/boom", "500"))
	if count != 1 {
		t.Errorf("expected 1 request with status 500, got %v", count)
	}
}
