package permissions

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
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

		CREATE UNIQUE INDEX idx_role_assignments_tuple
			ON role_assignments(user_id, role_id, scope_type, COALESCE(scope_id, ''));
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	return db
}

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	return NewSQLStore(setupTestDB(t))
}

func createTestUser(t *testing.T, store *SQLStore, subject string, isAdmin bool) *User {
	t.Helper()

	user := &User{Subject: subject, Name: subject, IsAdmin: isAdmin}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user %s: %v", subject, err)
	}
	return user
}

func createTestRole(t *testing.T, store *SQLStore, name string, priority int, grants ...PermissionGrant) *Role {
	t.Helper()

	role := &Role{
		Name:         name,
		Scope:        ScopeGlobal,
		Priority:     priority,
		IsAssignable: true,
	}
	if err := store.CreateRole(context.Background(), role); err != nil {
		t.Fatalf("Failed to create role %s: %v", name, err)
	}

	perms := make([]RolePermission, 0, len(grants))
	for _, g := range grants {
		perms = append(perms, RolePermission{RoleID: role.ID, Key: g.Key, Level: g.Level})
	}
	if err := store.ReplaceRolePermissions(context.Background(), role.ID, perms); err != nil {
		t.Fatalf("Failed to set permissions for role %s: %v", name, err)
	}

	return role
}

func assignTestRole(t *testing.T, store *SQLStore, userID, roleID int64, scope Scope) *RoleAssignment {
	t.Helper()

	a := &RoleAssignment{UserID: userID, RoleID: roleID, ScopeType: scope.Type}
	if scope.ID != "" {
		id := scope.ID
		a.ScopeID = &id
	}
	if err := store.CreateAssignment(context.Background(), a); err != nil {
		t.Fatalf("Failed to assign role %d to user %d: %v", roleID, userID, err)
	}
	return a
}
