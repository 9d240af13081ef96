package permissions

import (
	"time"
)

// Level represents how broadly a permission grant applies, from no access
// to unrestricted access. Levels are totally ordered; see Rank.
type Level string

const (
	LevelNone  Level = "none"  // no access
	LevelOwn   Level = "own"   // access only to resources the caller owns
	LevelGroup Level = "group" // access to resources owned by group co-members
	LevelAll   Level = "all"   // unrestricted access
)

// Valid reports whether l is one of the recognized levels.
func (l Level) Valid() bool {
	switch l {
	case LevelNone, LevelOwn, LevelGroup, LevelAll:
		return true
	}
	return false
}

// ScopeType represents the tier at which a grant or check applies.
type ScopeType string

const (
	ScopeGlobal       ScopeType = "global"
	ScopeGroup        ScopeType = "group"
	ScopeCourse       ScopeType = "course"
	ScopeOrganization ScopeType = "organization"
)

// Valid reports whether t is one of the recognized scope types.
func (t ScopeType) Valid() bool {
	switch t {
	case ScopeGlobal, ScopeGroup, ScopeCourse, ScopeOrganization:
		return true
	}
	return false
}

// Scope identifies the tier and optional concrete resource a grant or
// check applies to. An empty ID means the scope covers the whole tier.
type Scope struct {
	Type ScopeType `json:"scope_type"`
	ID   string    `json:"scope_id,omitempty"`
}

// GlobalScope returns the universal fallback scope.
func GlobalScope() Scope {
	return Scope{Type: ScopeGlobal}
}

// IsGlobal reports whether s is the global scope.
func (s Scope) IsGlobal() bool {
	return s.Type == ScopeGlobal
}

// String returns a string representation of the scope, e.g. "group:G1".
func (s Scope) String() string {
	if s.ID == "" {
		return string(s.Type)
	}
	return string(s.Type) + ":" + s.ID
}

// Definition is a recognized permission key with its default level.
// Definitions are seeded at setup time and read-only at runtime.
type Definition struct {
	ID           int64  `json:"id"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Resource     string `json:"resource"`
	Action       string `json:"action"`
	DefaultLevel Level  `json:"default_level"`
	Category     string `json:"category,omitempty"`
	IsSystem     bool   `json:"is_system"`
}

// Role is a named collection of permission grants. Priority breaks ties
// when multiple roles define the same key in the single-decision path:
// the highest-priority role that mentions the key wins outright.
type Role struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Scope        ScopeType `json:"scope"`
	Priority     int       `json:"priority"`
	IsAssignable bool      `json:"is_assignable"`
	IsSystem     bool      `json:"is_system"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RolePermission is one grant owned by a role. A level of "none" is
// represented by the absence of a row, never stored.
type RolePermission struct {
	RoleID int64  `json:"role_id"`
	Key    string `json:"permission_key"`
	Level  Level  `json:"level"`
}

// UserPermission is a direct grant bypassing roles for one user/key pair.
// At most one row exists per (UserID, Key).
type UserPermission struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Key        string    `json:"permission_key"`
	Level      Level     `json:"level"`
	ScopeType  ScopeType `json:"scope_type"`
	ScopeID    *string   `json:"scope_id,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
	AssignedBy *int64    `json:"assigned_by,omitempty"`
}

// RoleAssignment binds a role to a user at a scope. A nil ScopeID makes
// the assignment scope-type-wide: it matches any concrete ID under the
// same scope type.
type RoleAssignment struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	RoleID     int64     `json:"role_id"`
	ScopeType  ScopeType `json:"scope_type"`
	ScopeID    *string   `json:"scope_id,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
	AssignedBy *int64    `json:"assigned_by,omitempty"`
}

// User is the projection of an externally-managed identity that the
// engine needs: a stable ID, the external subject, and the platform
// admin shortcut used by the override in CheckAccess.
type User struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// PermissionGrant pairs a permission key with a level; used when creating
// or updating a role's permission set.
type PermissionGrant struct {
	Key   string `json:"key"`
	Level Level  `json:"level"`
}
