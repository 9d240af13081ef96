package permissions

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all permission schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					subject VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL DEFAULT '',
					email VARCHAR(255) NOT NULL DEFAULT '',
					is_admin BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_users_subject ON users(subject);
			`,
		},
		{
			Version:     2,
			Description: "Create permission_definitions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_definitions (
					id BIGSERIAL PRIMARY KEY,
					key VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					resource VARCHAR(100) NOT NULL,
					action VARCHAR(100) NOT NULL,
					default_level VARCHAR(20) NOT NULL DEFAULT 'none',
					category VARCHAR(100) NOT NULL DEFAULT '',
					is_system BOOLEAN NOT NULL DEFAULT FALSE
				);

				CREATE INDEX idx_permission_definitions_resource ON permission_definitions(resource);
				CREATE INDEX idx_permission_definitions_category ON permission_definitions(category);
			`,
		},
		{
			Version:     3,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					scope VARCHAR(50) NOT NULL DEFAULT 'global',
					priority INT NOT NULL DEFAULT 0,
					is_assignable BOOLEAN NOT NULL DEFAULT TRUE,
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_roles_priority ON roles(priority);
			`,
		},
		{
			Version:     4,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_key VARCHAR(255) NOT NULL,
					level VARCHAR(20) NOT NULL,
					PRIMARY KEY (role_id, permission_key)
				);

				CREATE INDEX idx_role_permissions_key ON role_permissions(permission_key);
			`,
		},
		{
			Version:     5,
			Description: "Create user_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_permissions (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					permission_key VARCHAR(255) NOT NULL,
					level VARCHAR(20) NOT NULL,
					scope_type VARCHAR(50) NOT NULL DEFAULT 'global',
					scope_id VARCHAR(255),
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW(),
					assigned_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					UNIQUE(user_id, permission_key)
				);

				CREATE INDEX idx_user_permissions_user_id ON user_permissions(user_id);
			`,
		},
		{
			Version:     6,
			Description: "Create role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					scope_type VARCHAR(50) NOT NULL DEFAULT 'global',
					scope_id VARCHAR(255),
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW(),
					assigned_by BIGINT REFERENCES users(id) ON DELETE SET NULL
				);

				CREATE UNIQUE INDEX idx_role_assignments_tuple
					ON role_assignments(user_id, role_id, scope_type, COALESCE(scope_id, ''));
				CREATE INDEX idx_role_assignments_user_id ON role_assignments(user_id);
				CREATE INDEX idx_role_assignments_role_id ON role_assignments(role_id);
			`,
		},
		{
			Version:     7,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(20) NOT NULL,
					name VARCHAR(255) NOT NULL,
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMP
				);

				CREATE INDEX idx_api_tokens_user_id ON api_tokens(user_id);
			`,
		},
		{
			Version:     8,
			Description: "Create audit_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					actor_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					action VARCHAR(100) NOT NULL,
					resource_type VARCHAR(100) NOT NULL,
					resource_id VARCHAR(255) NOT NULL DEFAULT '',
					status VARCHAR(20) NOT NULL,
					error_message TEXT NOT NULL DEFAULT '',
					ip_address VARCHAR(255) NOT NULL DEFAULT '',
					user_agent TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_audit_logs_actor_id ON audit_logs(actor_id);
				CREATE INDEX idx_audit_logs_action ON audit_logs(action);
				CREATE INDEX idx_audit_logs_created_at ON audit_logs(created_at);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS gatekeeper_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM gatekeeper_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO gatekeeper_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
