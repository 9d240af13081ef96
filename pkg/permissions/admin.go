package permissions

import (
	"context"
	"errors"
	"fmt"
)

// Admin performs the mutations that keep role and grant data consistent.
// Every mutation that can change a decision invalidates the affected
// users' cached results before returning.
type Admin struct {
	store Store
	cache *DecisionCache
}

// NewAdmin creates the administration surface over a store. cache may be
// nil when decision caching is disabled.
func NewAdmin(store Store, cache *DecisionCache) *Admin {
	return &Admin{store: store, cache: cache}
}

// CreateRoleParams carries the inputs for CreateRole.
type CreateRoleParams struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Scope        ScopeType         `json:"scope"`
	Priority     int               `json:"priority"`
	IsAssignable bool              `json:"is_assignable"`
	Permissions  []PermissionGrant `json:"permissions"`
}

// CreateRole inserts a custom role and its non-none grants. Roles created
// through this path are never system roles.
func (a *Admin) CreateRole(ctx context.Context, params CreateRoleParams) (*Role, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("role name is required")
	}
	if !params.Scope.Valid() {
		return nil, fmt.Errorf("invalid role scope %q", params.Scope)
	}

	role := &Role{
		Name:         params.Name,
		Description:  params.Description,
		Scope:        params.Scope,
		Priority:     params.Priority,
		IsAssignable: params.IsAssignable,
		IsSystem:     false,
	}

	if err := a.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}

	grants := make([]RolePermission, 0, len(params.Permissions))
	for _, p := range params.Permissions {
		grants = append(grants, RolePermission{RoleID: role.ID, Key: p.Key, Level: p.Level})
	}
	if err := a.store.ReplaceRolePermissions(ctx, role.ID, grants); err != nil {
		return nil, err
	}

	return role, nil
}

// RoleUpdate carries the optional scalar patches for UpdateRole. Nil
// fields are left unchanged.
type RoleUpdate struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	Priority     *int    `json:"priority,omitempty"`
	IsAssignable *bool   `json:"is_assignable,omitempty"`
}

// UpdateRole patches a role's scalar fields and, when permissions is
// non-nil, replaces the role's whole grant set. System roles reject all
// updates.
func (a *Admin) UpdateRole(ctx context.Context, roleID int64, update RoleUpdate, permissions []PermissionGrant) (*Role, error) {
	role, err := a.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, fmt.Errorf("%w: %s", ErrSystemRole, role.Name)
	}

	if update.Name != nil {
		role.Name = *update.Name
	}
	if update.Description != nil {
		role.Description = *update.Description
	}
	if update.Priority != nil {
		role.Priority = *update.Priority
	}
	if update.IsAssignable != nil {
		role.IsAssignable = *update.IsAssignable
	}

	if err := a.store.UpdateRole(ctx, role); err != nil {
		return nil, err
	}

	if permissions != nil {
		grants := make([]RolePermission, 0, len(permissions))
		for _, p := range permissions {
			grants = append(grants, RolePermission{RoleID: role.ID, Key: p.Key, Level: p.Level})
		}
		if err := a.store.ReplaceRolePermissions(ctx, role.ID, grants); err != nil {
			return nil, err
		}
	}

	a.invalidateRole(ctx, roleID)
	return role, nil
}

// DeleteRole removes a custom role together with its grants and
// assignments. System roles cannot be deleted.
func (a *Admin) DeleteRole(ctx context.Context, roleID int64) error {
	role, err := a.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: %s", ErrSystemRole, role.Name)
	}

	a.invalidateRole(ctx, roleID)
	return a.store.DeleteRole(ctx, roleID)
}

// AssignRole binds a role to a user at a scope. Assigning an identical
// tuple twice is idempotent: the existing assignment is returned. The
// unique index on the tuple backstops the check-then-insert against
// concurrent mutations; an insert that loses the race re-reads the row
// the winner created.
func (a *Admin) AssignRole(ctx context.Context, userID, roleID int64, scope Scope, assignedBy *int64) (*RoleAssignment, error) {
	if scope.Type == "" {
		scope = GlobalScope()
	}

	if _, err := a.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	role, err := a.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !role.IsAssignable {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotAssignable, role.Name)
	}

	existing, err := a.store.GetAssignment(ctx, userID, roleID, scope)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrAssignmentNotFound) {
		return nil, err
	}

	assignment := &RoleAssignment{
		UserID:     userID,
		RoleID:     roleID,
		ScopeType:  scope.Type,
		AssignedBy: assignedBy,
	}
	if scope.ID != "" {
		id := scope.ID
		assignment.ScopeID = &id
	}

	if err := a.store.CreateAssignment(ctx, assignment); err != nil {
		// A concurrent assign may have won the unique index; treat the
		// surviving row as ours.
		if existing, getErr := a.store.GetAssignment(ctx, userID, roleID, scope); getErr == nil {
			return existing, nil
		}
		return nil, err
	}

	a.invalidateUser(ctx, userID)
	return assignment, nil
}

// RevokeRole removes the assignment matching the tuple. Revoking an
// assignment that does not exist reports success with revoked=false.
func (a *Admin) RevokeRole(ctx context.Context, userID, roleID int64, scope Scope) (revoked bool, err error) {
	if scope.Type == "" {
		scope = GlobalScope()
	}

	assignment, err := a.store.GetAssignment(ctx, userID, roleID, scope)
	if err != nil {
		if errors.Is(err, ErrAssignmentNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := a.store.DeleteAssignment(ctx, assignment.ID); err != nil {
		return false, err
	}

	a.invalidateUser(ctx, userID)
	return true, nil
}

// GrantPermission records a direct grant for a user. Granting LevelNone
// deletes any existing grant instead of storing it; deleting a grant
// that does not exist succeeds.
func (a *Admin) GrantPermission(ctx context.Context, userID int64, permissionKey string, level Level, scope Scope, assignedBy *int64) error {
	if scope.Type == "" {
		scope = GlobalScope()
	}
	if !level.Valid() {
		return fmt.Errorf("invalid permission level %q", level)
	}

	if _, err := a.store.GetUser(ctx, userID); err != nil {
		return err
	}
	if _, err := a.store.GetDefinition(ctx, permissionKey); err != nil {
		return err
	}

	if level == LevelNone {
		if err := a.store.DeleteUserPermission(ctx, userID, permissionKey); err != nil {
			return err
		}
		a.invalidateUser(ctx, userID)
		return nil
	}

	up := &UserPermission{
		UserID:     userID,
		Key:        permissionKey,
		Level:      level,
		ScopeType:  scope.Type,
		AssignedBy: assignedBy,
	}
	if scope.ID != "" {
		id := scope.ID
		up.ScopeID = &id
	}

	if err := a.store.UpsertUserPermission(ctx, up); err != nil {
		return err
	}

	a.invalidateUser(ctx, userID)
	return nil
}

// EnsureUserRegistered creates the projection row for an external
// subject if one does not exist, assigning the default User role at
// global scope. Existing users are returned as-is.
func (a *Admin) EnsureUserRegistered(ctx context.Context, subject, name, email string) (*User, error) {
	user, err := a.store.GetUserBySubject(ctx, subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user = &User{Subject: subject, Name: name, Email: email}
	if err := a.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	defaultRole, err := a.store.GetRoleByName(ctx, RoleNameUser)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			// Seeding has not run; the user still exists, just without
			// the default role.
			return user, nil
		}
		return nil, err
	}

	assignment := &RoleAssignment{
		UserID:    user.ID,
		RoleID:    defaultRole.ID,
		ScopeType: ScopeGlobal,
	}
	if err := a.store.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}

	return user, nil
}

func (a *Admin) invalidateUser(ctx context.Context, userID int64) {
	if a.cache != nil {
		a.cache.InvalidateUser(ctx, userID)
	}
}

// invalidateRole drops cached decisions for every user holding the role.
func (a *Admin) invalidateRole(ctx context.Context, roleID int64) {
	if a.cache == nil {
		return
	}
	// Role-wide invalidation would need a reverse index; flushing the
	// whole decision cache is correct and the mutation path is cold.
	a.cache.InvalidateAll(ctx)
}
