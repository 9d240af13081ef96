package permissions

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore implements Store over database/sql. Production runs it
// against PostgreSQL; tests run it against in-memory SQLite, so every
// query here sticks to the portable subset of both.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// DB exposes the underlying handle for health checks and migrations.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// CreateDefinition inserts a permission definition into the catalog.
func (s *SQLStore) CreateDefinition(ctx context.Context, def *Definition) error {
	query := `
		INSERT INTO permission_definitions (key, name, description, resource, action, default_level, category, is_system)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		def.Key,
		def.Name,
		def.Description,
		def.Resource,
		def.Action,
		def.DefaultLevel,
		def.Category,
		def.IsSystem,
	).Scan(&def.ID)

	if err != nil {
		return fmt.Errorf("failed to create permission definition: %w", err)
	}

	return nil
}

// GetDefinition retrieves a permission definition by key.
func (s *SQLStore) GetDefinition(ctx context.Context, key string) (*Definition, error) {
	query := `
		SELECT id, key, name, description, resource, action, default_level, category, is_system
		FROM permission_definitions
		WHERE key = $1
	`

	var def Definition
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&def.ID,
		&def.Key,
		&def.Name,
		&def.Description,
		&def.Resource,
		&def.Action,
		&def.DefaultLevel,
		&def.Category,
		&def.IsSystem,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrPermissionNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission definition: %w", err)
	}

	return &def, nil
}

// ListDefinitions returns the full permission catalog.
func (s *SQLStore) ListDefinitions(ctx context.Context) ([]Definition, error) {
	query := `
		SELECT id, key, name, description, resource, action, default_level, category, is_system
		FROM permission_definitions
		ORDER BY resource ASC, action ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission definitions: %w", err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var def Definition
		err := rows.Scan(
			&def.ID,
			&def.Key,
			&def.Name,
			&def.Description,
			&def.Resource,
			&def.Action,
			&def.DefaultLevel,
			&def.Category,
			&def.IsSystem,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission definition: %w", err)
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

// CountDefinitions returns the number of seeded definitions.
func (s *SQLStore) CountDefinitions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM permission_definitions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count permission definitions: %w", err)
	}
	return count, nil
}

// CreateRole inserts a new role.
func (s *SQLStore) CreateRole(ctx context.Context, role *Role) error {
	query := `
		INSERT INTO roles (name, description, scope, priority, is_assignable, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		role.Name,
		role.Description,
		role.Scope,
		role.Priority,
		role.IsAssignable,
		role.IsSystem,
		now,
		now,
	).Scan(&role.ID)

	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID.
func (s *SQLStore) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `
		SELECT id, name, description, scope, priority, is_assignable, is_system, created_at, updated_at
		FROM roles
		WHERE id = $1
	`

	role, err := scanRole(s.db.QueryRowContext(ctx, query, roleID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrRoleNotFound, roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return role, nil
}

// GetRoleByName retrieves a role by its unique name.
func (s *SQLStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `
		SELECT id, name, description, scope, priority, is_assignable, is_system, created_at, updated_at
		FROM roles
		WHERE name = $1
	`

	role, err := scanRole(s.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return role, nil
}

// UpdateRole patches a role's scalar fields.
func (s *SQLStore) UpdateRole(ctx context.Context, role *Role) error {
	query := `
		UPDATE roles
		SET name = $1, description = $2, scope = $3, priority = $4, is_assignable = $5, updated_at = $6
		WHERE id = $7
	`

	role.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		role.Name,
		role.Description,
		role.Scope,
		role.Priority,
		role.IsAssignable,
		role.UpdatedAt,
		role.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	return nil
}

// DeleteRole removes a role together with its grants and assignments.
// The cascade runs in one transaction so a decision never observes a
// role whose grants are gone but whose assignments remain.
func (s *SQLStore) DeleteRole(ctx context.Context, roleID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role permissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_assignments WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role deletion: %w", err)
	}

	return nil
}

// ListRoles returns all roles ordered by priority, highest first.
func (s *SQLStore) ListRoles(ctx context.Context) ([]Role, error) {
	query := `
		SELECT id, name, description, scope, priority, is_assignable, is_system, created_at, updated_at
		FROM roles
		ORDER BY priority DESC, name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}

	return roles, rows.Err()
}

// GetRolePermission retrieves a single grant for (role, key).
func (s *SQLStore) GetRolePermission(ctx context.Context, roleID int64, key string) (*RolePermission, error) {
	query := `
		SELECT role_id, permission_key, level
		FROM role_permissions
		WHERE role_id = $1 AND permission_key = $2
	`

	var rp RolePermission
	err := s.db.QueryRowContext(ctx, query, roleID, key).Scan(&rp.RoleID, &rp.Key, &rp.Level)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role permission: %w", err)
	}

	return &rp, nil
}

// ListRolePermissions returns all grants owned by a role.
func (s *SQLStore) ListRolePermissions(ctx context.Context, roleID int64) ([]RolePermission, error) {
	query := `
		SELECT role_id, permission_key, level
		FROM role_permissions
		WHERE role_id = $1
		ORDER BY permission_key ASC
	`

	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	var grants []RolePermission
	for rows.Next() {
		var rp RolePermission
		if err := rows.Scan(&rp.RoleID, &rp.Key, &rp.Level); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		grants = append(grants, rp)
	}

	return grants, rows.Err()
}

// ReplaceRolePermissions deletes a role's grants and reinserts the given
// set in one transaction. Grants with level "none" are skipped; absence
// of a row is how "none" is represented.
func (s *SQLStore) ReplaceRolePermissions(ctx context.Context, roleID int64, grants []RolePermission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}

	for _, g := range grants {
		if g.Level == LevelNone {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_key, level) VALUES ($1, $2, $3)`,
			roleID, g.Key, g.Level,
		)
		if err != nil {
			return fmt.Errorf("failed to insert role permission %q: %w", g.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role permissions: %w", err)
	}

	return nil
}

// GetUserPermission retrieves the direct grant for (user, key), if any.
func (s *SQLStore) GetUserPermission(ctx context.Context, userID int64, key string) (*UserPermission, error) {
	query := `
		SELECT id, user_id, permission_key, level, scope_type, scope_id, assigned_at, assigned_by
		FROM user_permissions
		WHERE user_id = $1 AND permission_key = $2
	`

	up, err := scanUserPermission(s.db.QueryRowContext(ctx, query, userID, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user permission: %w", err)
	}

	return up, nil
}

// ListUserPermissions returns all direct grants for a user.
func (s *SQLStore) ListUserPermissions(ctx context.Context, userID int64) ([]UserPermission, error) {
	query := `
		SELECT id, user_id, permission_key, level, scope_type, scope_id, assigned_at, assigned_by
		FROM user_permissions
		WHERE user_id = $1
		ORDER BY permission_key ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user permissions: %w", err)
	}
	defer rows.Close()

	var grants []UserPermission
	for rows.Next() {
		up, err := scanUserPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user permission: %w", err)
		}
		grants = append(grants, *up)
	}

	return grants, rows.Err()
}

// UpsertUserPermission patches the existing direct grant for (user, key)
// or inserts a new one.
func (s *SQLStore) UpsertUserPermission(ctx context.Context, up *UserPermission) error {
	existing, err := s.GetUserPermission(ctx, up.UserID, up.Key)
	if err != nil {
		return err
	}

	if existing != nil {
		query := `
			UPDATE user_permissions
			SET level = $1, scope_type = $2, scope_id = $3
			WHERE id = $4
		`
		_, err := s.db.ExecContext(ctx, query, up.Level, up.ScopeType, up.ScopeID, existing.ID)
		if err != nil {
			return fmt.Errorf("failed to update user permission: %w", err)
		}
		up.ID = existing.ID
		up.AssignedAt = existing.AssignedAt
		return nil
	}

	query := `
		INSERT INTO user_permissions (user_id, permission_key, level, scope_type, scope_id, assigned_at, assigned_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, query,
		up.UserID,
		up.Key,
		up.Level,
		up.ScopeType,
		up.ScopeID,
		now,
		up.AssignedBy,
	).Scan(&up.ID)

	if err != nil {
		return fmt.Errorf("failed to insert user permission: %w", err)
	}

	up.AssignedAt = now
	return nil
}

// DeleteUserPermission removes the direct grant for (user, key). Deleting
// a grant that does not exist is a no-op.
func (s *SQLStore) DeleteUserPermission(ctx context.Context, userID int64, key string) error {
	query := `DELETE FROM user_permissions WHERE user_id = $1 AND permission_key = $2`
	if _, err := s.db.ExecContext(ctx, query, userID, key); err != nil {
		return fmt.Errorf("failed to delete user permission: %w", err)
	}
	return nil
}

// CreateAssignment inserts a role assignment.
func (s *SQLStore) CreateAssignment(ctx context.Context, a *RoleAssignment) error {
	query := `
		INSERT INTO role_assignments (user_id, role_id, scope_type, scope_id, assigned_at, assigned_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		a.UserID,
		a.RoleID,
		a.ScopeType,
		a.ScopeID,
		now,
		a.AssignedBy,
	).Scan(&a.ID)

	if err != nil {
		return fmt.Errorf("failed to create role assignment: %w", err)
	}

	a.AssignedAt = now
	return nil
}

// GetAssignment retrieves the assignment matching the exact
// (user, role, scope type, scope id) tuple.
func (s *SQLStore) GetAssignment(ctx context.Context, userID, roleID int64, scope Scope) (*RoleAssignment, error) {
	var row *sql.Row
	if scope.ID == "" {
		query := `
			SELECT id, user_id, role_id, scope_type, scope_id, assigned_at, assigned_by
			FROM role_assignments
			WHERE user_id = $1 AND role_id = $2 AND scope_type = $3 AND scope_id IS NULL
		`
		row = s.db.QueryRowContext(ctx, query, userID, roleID, scope.Type)
	} else {
		query := `
			SELECT id, user_id, role_id, scope_type, scope_id, assigned_at, assigned_by
			FROM role_assignments
			WHERE user_id = $1 AND role_id = $2 AND scope_type = $3 AND scope_id = $4
		`
		row = s.db.QueryRowContext(ctx, query, userID, roleID, scope.Type, scope.ID)
	}

	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %d role %d scope %s", ErrAssignmentNotFound, userID, roleID, scope)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role assignment: %w", err)
	}

	return a, nil
}

// ListUserAssignments returns all assignments for a user under one scope
// type; scope-id filtering happens in the gatherer.
func (s *SQLStore) ListUserAssignments(ctx context.Context, userID int64, scopeType ScopeType) ([]RoleAssignment, error) {
	query := `
		SELECT id, user_id, role_id, scope_type, scope_id, assigned_at, assigned_by
		FROM role_assignments
		WHERE user_id = $1 AND scope_type = $2
		ORDER BY assigned_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, scopeType)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// ListAssignmentsForUser returns every assignment a user holds across
// all scopes.
func (s *SQLStore) ListAssignmentsForUser(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	query := `
		SELECT id, user_id, role_id, scope_type, scope_id, assigned_at, assigned_by
		FROM role_assignments
		WHERE user_id = $1
		ORDER BY assigned_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// DeleteAssignment removes an assignment by ID.
func (s *SQLStore) DeleteAssignment(ctx context.Context, assignmentID int64) error {
	query := `DELETE FROM role_assignments WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, assignmentID); err != nil {
		return fmt.Errorf("failed to delete role assignment: %w", err)
	}
	return nil
}

// CreateUser inserts a user projection row.
func (s *SQLStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (subject, name, email, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		user.Subject,
		user.Name,
		user.Email,
		user.IsAdmin,
		now,
	).Scan(&user.ID)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT id, subject, name, email, is_admin, created_at
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetUserBySubject retrieves a user by the external identity subject.
func (s *SQLStore) GetUserBySubject(ctx context.Context, subject string) (*User, error) {
	query := `
		SELECT id, subject, name, email, is_admin, created_at
		FROM users
		WHERE subject = $1
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, subject))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: subject %s", ErrUserNotFound, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRole(scanner rowScanner) (*Role, error) {
	var role Role
	err := scanner.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.Scope,
		&role.Priority,
		&role.IsAssignable,
		&role.IsSystem,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func scanUser(scanner rowScanner) (*User, error) {
	var user User
	err := scanner.Scan(
		&user.ID,
		&user.Subject,
		&user.Name,
		&user.Email,
		&user.IsAdmin,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func scanUserPermission(scanner rowScanner) (*UserPermission, error) {
	var up UserPermission
	var scopeID sql.NullString
	var assignedBy sql.NullInt64

	err := scanner.Scan(
		&up.ID,
		&up.UserID,
		&up.Key,
		&up.Level,
		&up.ScopeType,
		&scopeID,
		&up.AssignedAt,
		&assignedBy,
	)
	if err != nil {
		return nil, err
	}

	if scopeID.Valid {
		id := scopeID.String
		up.ScopeID = &id
	}
	if assignedBy.Valid {
		by := assignedBy.Int64
		up.AssignedBy = &by
	}

	return &up, nil
}

func scanAssignment(scanner rowScanner) (*RoleAssignment, error) {
	var a RoleAssignment
	var scopeID sql.NullString
	var assignedBy sql.NullInt64

	err := scanner.Scan(
		&a.ID,
		&a.UserID,
		&a.RoleID,
		&a.ScopeType,
		&scopeID,
		&a.AssignedAt,
		&assignedBy,
	)
	if err != nil {
		return nil, err
	}

	if scopeID.Valid {
		id := scopeID.String
		a.ScopeID = &id
	}
	if assignedBy.Valid {
		by := assignedBy.Int64
		a.AssignedBy = &by
	}

	return &a, nil
}

func collectAssignments(rows *sql.Rows) ([]RoleAssignment, error) {
	var assignments []RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}
