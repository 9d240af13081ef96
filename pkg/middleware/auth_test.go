package middleware

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lmskit/gatekeeper/pkg/auth"
	"github.com/lmskit/gatekeeper/pkg/observability"
	"github.com/lmskit/gatekeeper/pkg/permissions"
)

func setupAuthDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL DEFAULT 'global',
		priority INTEGER NOT NULL DEFAULT 0,
		is_assignable BOOLEAN NOT NULL DEFAULT 1,
		is_system BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE role_assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		role_id INTEGER NOT NULL,
		scope_type TEXT NOT NULL DEFAULT 'global',
		scope_id TEXT,
		assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		assigned_by INTEGER
	);

	CREATE TABLE api_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token_hash TEXT NOT NULL UNIQUE,
		token_prefix TEXT NOT NULL,
		name TEXT NOT NULL,
		expires_at TIMESTAMP,
		last_used_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		revoked_at TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

type stubResolver struct {
	identity *auth.Identity
	err      error
}

func (s *stubResolver) Resolve(ctx context.Context, rawToken string) (*auth.Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func echoIdentityHandler(t *testing.T, captured **auth.Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = GetIdentity(r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	db := setupAuthDB(t)
	store := permissions.NewSQLStore(db)
	m := NewAuthMiddleware(auth.NewTokenStore(db), nil, store, permissions.NewAdmin(store, nil), testLogger())

	var captured *auth.Identity
	handler := m.Handler(echoIdentityHandler(t, &captured))

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
	if captured != nil {
		t.Error("handler should not have run")
	}
}

func TestAuthMiddlewareAPIToken(t *testing.T) {
	ctx := context.Background()
	db := setupAuthDB(t)
	store := permissions.NewSQLStore(db)

	user := &permissions.User{Subject: "svc-ci", Name: "CI"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	tokens := auth.NewTokenStore(db)
	record, plaintext, err := tokens.CreateToken(ctx, user.ID, "ci", nil)
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}

	m := NewAuthMiddleware(tokens, nil, store, permissions.NewAdmin(store, nil), testLogger())

	var captured *auth.Identity
	handler := m.Handler(echoIdentityHandler(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured == nil || captured.UserID != user.ID || captured.Subject != "svc-ci" {
		t.Errorf("unexpected identity %+v", captured)
	}

	// Revoked tokens stop working.
	if err := tokens.RevokeToken(ctx, record.ID); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for revoked token, got %d", rec.Code)
	}
}

func TestAuthMiddlewareOIDCRegistersUser(t *testing.T) {
	db := setupAuthDB(t)
	store := permissions.NewSQLStore(db)
	resolver := &stubResolver{identity: &auth.Identity{Subject: "alice", Name: "Alice", Email: "alice@example.com"}}

	m := NewAuthMiddleware(auth.NewTokenStore(db), resolver, store, permissions.NewAdmin(store, nil), testLogger())

	var captured *auth.Identity
	handler := m.Handler(echoIdentityHandler(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/v1/access/permissions", nil)
	req.Header.Set("Authorization", "Bearer some.oidc.token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured == nil || captured.UserID == 0 {
		t.Fatalf("expected a registered identity, got %+v", captured)
	}

	user, err := store.GetUserBySubject(context.Background(), "alice")
	if err != nil {
		t.Fatalf("user was not registered: %v", err)
	}
	if user.ID != captured.UserID {
		t.Errorf("identity user ID %d does not match record %d", captured.UserID, user.ID)
	}
}

func TestAuthMiddlewareResolverRejection(t *testing.T) {
	db := setupAuthDB(t)
	store := permissions.NewSQLStore(db)
	resolver := &stubResolver{err: errors.New("token verification failed")}

	m := NewAuthMiddleware(auth.NewTokenStore(db), resolver, store, permissions.NewAdmin(store, nil), testLogger())
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer bad.token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareNoResolverConfigured(t *testing.T) {
	db := setupAuthDB(t)
	store := permissions.NewSQLStore(db)

	m := NewAuthMiddleware(auth.NewTokenStore(db), nil, store, permissions.NewAdmin(store, nil), testLogger())
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer some.oidc.token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 when no resolver is configured, got %d", rec.Code)
	}
}
