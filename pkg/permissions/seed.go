package permissions

import (
	"context"
	"errors"
	"fmt"
)

// Built-in role names. Both roles are system roles pinned at global
// scope; they cannot be edited or deleted through the Admin surface.
const (
	RoleNameAdmin = "Admin"
	RoleNameUser  = "User"
)

// Seed installs the built-in permission catalog and the two system
// roles. It is idempotent: definitions and roles that already exist are
// left untouched, so it is safe to run on every startup.
func Seed(ctx context.Context, store Store) error {
	defs := DefaultDefinitions()

	for i := range defs {
		existing, err := store.GetDefinition(ctx, defs[i].Key)
		if err == nil && existing != nil {
			continue
		}
		if err != nil && !errors.Is(err, ErrPermissionNotFound) {
			return fmt.Errorf("failed to check definition %s: %w", defs[i].Key, err)
		}
		if err := store.CreateDefinition(ctx, &defs[i]); err != nil {
			return fmt.Errorf("failed to seed definition %s: %w", defs[i].Key, err)
		}
	}

	if err := seedRole(ctx, store, RoleNameAdmin, "Full platform administration", 100, adminGrants(defs)); err != nil {
		return err
	}
	if err := seedRole(ctx, store, RoleNameUser, "Standard member access", 10, userGrants()); err != nil {
		return err
	}

	return nil
}

func seedRole(ctx context.Context, store Store, name, description string, priority int, grants []PermissionGrant) error {
	if _, err := store.GetRoleByName(ctx, name); err == nil {
		return nil
	} else if !errors.Is(err, ErrRoleNotFound) {
		return fmt.Errorf("failed to check role %s: %w", name, err)
	}

	role := &Role{
		Name:         name,
		Description:  description,
		Scope:        ScopeGlobal,
		Priority:     priority,
		IsAssignable: true,
		IsSystem:     true,
	}
	if err := store.CreateRole(ctx, role); err != nil {
		return fmt.Errorf("failed to seed role %s: %w", name, err)
	}

	perms := make([]RolePermission, 0, len(grants))
	for _, g := range grants {
		perms = append(perms, RolePermission{RoleID: role.ID, Key: g.Key, Level: g.Level})
	}
	if err := store.ReplaceRolePermissions(ctx, role.ID, perms); err != nil {
		return fmt.Errorf("failed to seed role %s permissions: %w", name, err)
	}

	return nil
}

// adminGrants gives the Admin role every catalog key at full level.
func adminGrants(defs []Definition) []PermissionGrant {
	grants := make([]PermissionGrant, 0, len(defs))
	for _, d := range defs {
		grants = append(grants, PermissionGrant{Key: d.Key, Level: LevelAll})
	}
	return grants
}

// userGrants gives the User role day-to-day access: read anything
// public, touch only your own records.
func userGrants() []PermissionGrant {
	own := []string{
		"user:read", "user:update",
		"content:update", "content:delete",
		"calendar:create", "calendar:update", "calendar:delete",
		"event:update", "event:delete",
		"order:create", "order:read",
	}
	all := []string{
		"content:read", "event:read",
		"course:read", "product:read",
	}
	group := []string{
		"group:read", "calendar:read",
	}

	grants := make([]PermissionGrant, 0, len(own)+len(all)+len(group))
	for _, key := range own {
		grants = append(grants, PermissionGrant{Key: key, Level: LevelOwn})
	}
	for _, key := range all {
		grants = append(grants, PermissionGrant{Key: key, Level: LevelAll})
	}
	for _, key := range group {
		grants = append(grants, PermissionGrant{Key: key, Level: LevelGroup})
	}
	return grants
}
