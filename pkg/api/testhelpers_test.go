package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lmskit/gatekeeper/pkg/audit"
	"github.com/lmskit/gatekeeper/pkg/auth"
	"github.com/lmskit/gatekeeper/pkg/observability"
	"github.com/lmskit/gatekeeper/pkg/permissions"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Same schema as the PostgreSQL migrations, in SQLite dialect.
	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			is_admin INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE permission_definitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			resource TEXT NOT NULL,
			action TEXT NOT NULL,
			default_level TEXT NOT NULL DEFAULT 'none',
			category TEXT NOT NULL DEFAULT '',
			is_system INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			scope TEXT NOT NULL DEFAULT 'global',
			priority INTEGER NOT NULL DEFAULT 0,
			is_assignable INTEGER NOT NULL DEFAULT 1,
			is_system INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE role_permissions (
			role_id INTEGER NOT NULL,
			permission_key TEXT NOT NULL,
			level TEXT NOT NULL,
			PRIMARY KEY (role_id, permission_key)
		);

		CREATE TABLE user_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			permission_key TEXT NOT NULL,
			level TEXT NOT NULL,
			scope_type TEXT NOT NULL DEFAULT 'global',
			scope_id TEXT,
			assigned_at TIMESTAMP NOT NULL,
			assigned_by INTEGER,
			UNIQUE(user_id, permission_key)
		);

		CREATE TABLE role_assignments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL,
			scope_type TEXT NOT NULL DEFAULT 'global',
			scope_id TEXT,
			assigned_at TIMESTAMP NOT NULL,
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
		);

		CREATE TABLE audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			actor_id INTEGER,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	return db
}

type testServer struct {
	server *Server
	store  *permissions.SQLStore
	admin  *permissions.Admin
	db     *sql.DB
}

// newTestServer builds a server over a fresh in-memory database with
// all middleware disabled so handlers are exercised directly.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := setupTestDB(t)
	store := permissions.NewSQLStore(db)

	return &testServer{
		server: NewServer(Deps{
			Store:    store,
			Engine:   permissions.NewEngine(store),
			Admin:    permissions.NewAdmin(store, nil),
			Tokens:   auth.NewTokenStore(db),
			Recorder: audit.NewRecorder(db),
			Logger:   observability.NewLogger(observability.ErrorLevel, io.Discard),
		}),
		store: store,
		admin: permissions.NewAdmin(store, nil),
		db:    db,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

func (ts *testServer) createUser(t *testing.T, subject string, isAdmin bool) *permissions.User {
	t.Helper()

	user := &permissions.User{Subject: subject, Name: subject, IsAdmin: isAdmin}
	if err := ts.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user %s: %v", subject, err)
	}
	return user
}

func (ts *testServer) createDefinition(t *testing.T, key string, defaultLevel permissions.Level) {
	t.Helper()

	def := &permissions.Definition{
		Key:          key,
		Name:         key,
		Resource:     "test",
		Action:       "test",
		DefaultLevel: defaultLevel,
	}
	if err := ts.store.CreateDefinition(context.Background(), def); err != nil {
		t.Fatalf("Failed to create definition %s: %v", key, err)
	}
}

func (ts *testServer) createRole(t *testing.T, name string, priority int, grants ...permissions.PermissionGrant) *permissions.Role {
	t.Helper()

	role, err := ts.admin.CreateRole(context.Background(), permissions.CreateRoleParams{
		Name:         name,
		Scope:        permissions.ScopeGlobal,
		Priority:     priority,
		IsAssignable: true,
		Permissions:  grants,
	})
	if err != nil {
		t.Fatalf("Failed to create role %s: %v", name, err)
	}
	return role
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}
