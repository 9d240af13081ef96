package permissions

import (
	"context"
)

// DefinitionRepository provides access to the permission catalog.
type DefinitionRepository interface {
	CreateDefinition(ctx context.Context, def *Definition) error
	GetDefinition(ctx context.Context, key string) (*Definition, error)
	ListDefinitions(ctx context.Context) ([]Definition, error)
	CountDefinitions(ctx context.Context) (int, error)
}

// RoleRepository provides role lifecycle persistence.
type RoleRepository interface {
	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, roleID int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, roleID int64) error
	ListRoles(ctx context.Context) ([]Role, error)
}

// RolePermissionRepository manages the grants owned by roles. Grants are
// replaced wholesale when a role's permission set changes, never diffed.
type RolePermissionRepository interface {
	GetRolePermission(ctx context.Context, roleID int64, key string) (*RolePermission, error)
	ListRolePermissions(ctx context.Context, roleID int64) ([]RolePermission, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, grants []RolePermission) error
}

// UserPermissionRepository manages direct per-user grants.
type UserPermissionRepository interface {
	GetUserPermission(ctx context.Context, userID int64, key string) (*UserPermission, error)
	ListUserPermissions(ctx context.Context, userID int64) ([]UserPermission, error)
	UpsertUserPermission(ctx context.Context, up *UserPermission) error
	DeleteUserPermission(ctx context.Context, userID int64, key string) error
}

// AssignmentRepository manages role-to-user bindings.
type AssignmentRepository interface {
	CreateAssignment(ctx context.Context, a *RoleAssignment) error
	GetAssignment(ctx context.Context, userID, roleID int64, scope Scope) (*RoleAssignment, error)
	ListUserAssignments(ctx context.Context, userID int64, scopeType ScopeType) ([]RoleAssignment, error)
	ListAssignmentsForUser(ctx context.Context, userID int64) ([]RoleAssignment, error)
	DeleteAssignment(ctx context.Context, assignmentID int64) error
}

// UserRepository is the identity projection this engine needs; the user
// records themselves are owned by the external identity provider.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID int64) (*User, error)
	GetUserBySubject(ctx context.Context, subject string) (*User, error)
}

// Store aggregates the per-entity repositories. Production uses the
// PostgreSQL-backed SQLStore; tests construct one over an in-memory
// SQLite database so each test runs against a fresh store.
type Store interface {
	DefinitionRepository
	RoleRepository
	RolePermissionRepository
	UserPermissionRepository
	AssignmentRepository
	UserRepository
}
