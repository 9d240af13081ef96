package permissions

import (
	"context"
	"testing"
)

func createTestDefinition(t *testing.T, store *SQLStore, key string, defaultLevel Level) {
	t.Helper()

	resource, action := splitKey(key)
	def := &Definition{
		Key:          key,
		Name:         key,
		Resource:     resource,
		Action:       action,
		DefaultLevel: defaultLevel,
		IsSystem:     true,
	}
	if err := store.CreateDefinition(context.Background(), def); err != nil {
		t.Fatalf("Failed to create definition %s: %v", key, err)
	}
}

func TestCheckAccessAdminOverride(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	admin := createTestUser(t, store, "admin@test", true)

	// No grants, no roles, not even a definition for the key.
	allowed, err := engine.CheckAccess(ctx, admin.ID, "content:delete", GlobalScope(), nil)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !allowed {
		t.Error("Expected platform admin to pass every check")
	}
}

func TestCheckAccessUnknownUser(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)

	allowed, err := engine.CheckAccess(context.Background(), 9999, "content:read", GlobalScope(), nil)
	if err != nil {
		t.Fatalf("Expected denial without error for unknown user, got: %v", err)
	}
	if allowed {
		t.Error("Expected unknown user to be denied")
	}
}

func TestCheckAccessNoGrants(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)

	user := createTestUser(t, store, "alice@test", false)

	allowed, err := engine.CheckAccess(context.Background(), user.ID, "content:update", GlobalScope(), nil)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if allowed {
		t.Error("Expected denial when no source grants the key")
	}
}

func TestCheckAccessDirectGrant(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	user := createTestUser(t, store, "alice@test", false)

	up := &UserPermission{
		UserID:    user.ID,
		Key:       "content:update",
		Level:     LevelAll,
		ScopeType: ScopeGlobal,
	}
	if err := store.UpsertUserPermission(ctx, up); err != nil {
		t.Fatalf("Failed to insert direct grant: %v", err)
	}

	allowed, err := engine.CheckAccess(ctx, user.ID, "content:update", GlobalScope(), nil)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !allowed {
		t.Error("Expected direct grant at level all to allow")
	}
}

func TestCheckAccessInsufficientDirectGrantFallsThroughToRoles(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	user := createTestUser(t, store, "alice@test", false)
	owner := createTestUser(t, store, "bob@test", false)

	// Direct grant only covers owned resources; the resource belongs to
	// someone else.
	up := &UserPermission{
		UserID:    user.ID,
		Key:       "content:update",
		Level:     LevelOwn,
		ScopeType: ScopeGlobal,
	}
	if err := store.UpsertUserPermission(ctx, up); err != nil {
		t.Fatalf("Failed to insert direct grant: %v", err)
	}

	role := createTestRole(t, store, "Editor", 50,
		PermissionGrant{Key: "content:update", Level: LevelAll},
	)
	assignTestRole(t, store, user.ID, role.ID, GlobalScope())

	allowed, err := engine.CheckAccess(ctx, user.ID, "content:update", GlobalScope(), &owner.ID)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !allowed {
		t.Error("Expected insufficient direct grant to fall through to the role grant")
	}
}

func TestCheckAccessHighestPriorityRoleWinsOutright(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	user := createTestUser(t, store, "alice@test", false)
	owner := createTestUser(t, store, "bob@test", false)

	// The restrictive role outranks the permissive one. Its "own" grant
	// decides the check even though a lower-priority role grants "all".
	restrictive := createTestRole(t, store, "Moderator", 90,
		PermissionGrant{Key: "content:update", Level: LevelOwn},
	)
	permissive := createTestRole(t, store, "Editor", 50,
		PermissionGrant{Key: "content:update", Level: LevelAll},
	)
	assignTestRole(t, store, user.ID, restrictive.ID, GlobalScope())
	assignTestRole(t, store, user.ID, permissive.ID, GlobalScope())

	allowed, err := engine.CheckAccess(ctx, user.ID, "content:update", GlobalScope(), &owner.ID)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if allowed {
		t.Error("Expected highest-priority role's own-level grant to deny for a non-owner")
	}

	// Owner passes through the same grant.
	allowed, err = engine.CheckAccess(ctx, user.ID, "content:update", GlobalScope(), &user.ID)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !allowed {
		t.Error("Expected own-level grant to allow the owner")
	}
}

func TestCheckAccessLowerPriorityRoleConsultedWhenKeyAbsent(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	user := createTestUser(t, store, "alice@test", false)

	// The higher-priority role does not mention the key at all, so the
	// lower-priority role decides.
	silent := createTestRole(t, store, "Moderator", 90,
		PermissionGrant{Key: "user:delete", Level: LevelAll},
	)
	speaking := createTestRole(t, store, "Editor", 50,
		PermissionGrant{Key: "content:update", Level: LevelAll},
	)
	assignTestRole(t, store, user.ID, silent.ID, GlobalScope())
	assignTestRole(t, store, user.ID, speaking.ID, GlobalScope())

	allowed, err := engine.CheckAccess(ctx, user.ID, "content:update", GlobalScope(), nil)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !allowed {
		t.Error("Expected lower-priority role to decide when higher-priority roles are silent")
	}
}

func TestCheckAccessGlobalFallback(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	user := createTestUser(t, store, "alice@test", false)

	role := createTestRole(t, store, "Editor", 50,
		PermissionGrant{Key: "content:update", Level: LevelAll},
	)
	assignTestRole(t, store, user.ID, role.ID, GlobalScope())

	// Checked at a course scope, the global assignment still applies.
	allowed, err := engine.CheckAccess(ctx, user.ID, "content:update",
		Scope{Type: ScopeCourse, ID: "algebra-101"}, nil)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !allowed {
		t.Error("Expected global assignment to apply at course scope")
	}
}

func TestCheckAccessScopeMatching(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	user := createTestUser(t, store, "alice@test", false)

	role := createTestRole(t, store, "CourseEditor", 50,
		PermissionGrant{Key: "content:update", Level: LevelAll},
	)
	assignTestRole(t, store, user.ID, role.ID, Scope{Type: ScopeCourse, ID: "algebra-101"})

	tests := []struct {
		name  string
		scope Scope
		want  bool
	}{
		{"matching course", Scope{Type: ScopeCourse, ID: "algebra-101"}, true},
		{"different course", Scope{Type: ScopeCourse, ID: "geometry-202"}, false},
		{"different scope type", Scope{Type: ScopeGroup, ID: "algebra-101"}, false},
		{"course type without id", Scope{Type: ScopeCourse}, false},
		{"global", GlobalScope(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, err := engine.CheckAccess(ctx, user.ID, "content:update", tt.scope, nil)
			if err != nil {
				t.Fatalf("CheckAccess failed: %v", err)
			}
			if allowed != tt.want {
				t.Errorf("CheckAccess at %s = %v, want %v", tt.scope, allowed, tt.want)
			}
		})
	}
}

func TestCheckAccessScopeTypeWideAssignment(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	user := createTestUser(t, store, "alice@test", false)

	role := createTestRole(t, store, "CourseEditor", 50,
		PermissionGrant{Key: "content:update", Level: LevelAll},
	)
	// No concrete scope ID: covers every course.
	assignTestRole(t, store, user.ID, role.ID, Scope{Type: ScopeCourse})

	for _, id := range []string{"algebra-101", "geometry-202"} {
		allowed, err := engine.CheckAccess(ctx, user.ID, "content:update",
			Scope{Type: ScopeCourse, ID: id}, nil)
		if err != nil {
			t.Fatalf("CheckAccess failed: %v", err)
		}
		if !allowed {
			t.Errorf("Expected type-wide assignment to cover course %s", id)
		}
	}

	// A request without an ID also matches the unscoped assignment.
	allowed, err := engine.CheckAccess(ctx, user.ID, "content:update", Scope{Type: ScopeCourse}, nil)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !allowed {
		t.Error("Expected type-wide assignment to match a request without an ID")
	}
}

func TestCheckAccessDanglingAssignmentIgnored(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	user := createTestUser(t, store, "alice@test", false)

	role := createTestRole(t, store, "Editor", 50,
		PermissionGrant{Key: "content:update", Level: LevelAll},
	)
	assignTestRole(t, store, user.ID, role.ID, GlobalScope())

	// Delete the role out from under the assignment.
	if _, err := store.DB().ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, role.ID); err != nil {
		t.Fatalf("Failed to delete role: %v", err)
	}

	allowed, err := engine.CheckAccess(ctx, user.ID, "content:update", GlobalScope(), nil)
	if err != nil {
		t.Fatalf("Expected dangling assignment to be skipped, got error: %v", err)
	}
	if allowed {
		t.Error("Expected denial once the granting role is gone")
	}
}

type stubGroupResolver struct {
	shared bool
	err    error
}

func (s *stubGroupResolver) SharesGroup(ctx context.Context, userID, ownerID int64) (bool, error) {
	return s.shared, s.err
}

func TestCheckAccessGroupLevel(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, opts ...EngineOption) (*Engine, int64, *int64) {
		store := newTestStore(t)
		engine := NewEngine(store, opts...)

		user := createTestUser(t, store, "alice@test", false)
		owner := createTestUser(t, store, "bob@test", false)

		role := createTestRole(t, store, "GroupReader", 50,
			PermissionGrant{Key: "calendar:read", Level: LevelGroup},
		)
		assignTestRole(t, store, user.ID, role.ID, GlobalScope())

		return engine, user.ID, &owner.ID
	}

	t.Run("without resolver behaves like own", func(t *testing.T) {
		engine, userID, ownerID := setup(t)

		allowed, err := engine.CheckAccess(ctx, userID, "calendar:read", GlobalScope(), ownerID)
		if err != nil {
			t.Fatalf("CheckAccess failed: %v", err)
		}
		if allowed {
			t.Error("Expected group grant without resolver to deny a non-owner")
		}
	})

	t.Run("shared group allows", func(t *testing.T) {
		engine, userID, ownerID := setup(t, WithGroupResolver(&stubGroupResolver{shared: true}))

		allowed, err := engine.CheckAccess(ctx, userID, "calendar:read", GlobalScope(), ownerID)
		if err != nil {
			t.Fatalf("CheckAccess failed: %v", err)
		}
		if !allowed {
			t.Error("Expected shared group membership to satisfy a group grant")
		}
	})

	t.Run("disjoint groups deny", func(t *testing.T) {
		engine, userID, ownerID := setup(t, WithGroupResolver(&stubGroupResolver{shared: false}))

		allowed, err := engine.CheckAccess(ctx, userID, "calendar:read", GlobalScope(), ownerID)
		if err != nil {
			t.Fatalf("CheckAccess failed: %v", err)
		}
		if allowed {
			t.Error("Expected disjoint group membership to deny a group grant")
		}
	})
}

func TestEffectivePermissionsDefaults(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	createTestDefinition(t, store, "content:read", LevelAll)
	createTestDefinition(t, store, "content:update", LevelOwn)
	createTestDefinition(t, store, "user:delete", LevelNone)

	user := createTestUser(t, store, "alice@test", false)

	set, err := engine.EffectivePermissions(ctx, user.ID, GlobalScope())
	if err != nil {
		t.Fatalf("EffectivePermissions failed: %v", err)
	}

	want := map[string]Level{
		"content:read":   LevelAll,
		"content:update": LevelOwn,
		"user:delete":    LevelNone,
	}
	for key, level := range want {
		if set[key] != level {
			t.Errorf("Expected %s at default level %s, got %s", key, level, set[key])
		}
	}
}

func TestEffectivePermissionsUnionIgnoresPriority(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	createTestDefinition(t, store, "content:update", LevelNone)

	user := createTestUser(t, store, "alice@test", false)
	owner := createTestUser(t, store, "bob@test", false)

	restrictive := createTestRole(t, store, "Moderator", 90,
		PermissionGrant{Key: "content:update", Level: LevelOwn},
	)
	permissive := createTestRole(t, store, "Editor", 50,
		PermissionGrant{Key: "content:update", Level: LevelAll},
	)
	assignTestRole(t, store, user.ID, restrictive.ID, GlobalScope())
	assignTestRole(t, store, user.ID, permissive.ID, GlobalScope())

	// The decision path denies: the priority-90 role's "own" grant wins.
	allowed, err := engine.CheckAccess(ctx, user.ID, "content:update", GlobalScope(), &owner.ID)
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if allowed {
		t.Error("Expected the decision path to deny via the higher-priority role")
	}

	// The enumeration path unions by dominance: "all" from the
	// lower-priority role shows through.
	set, err := engine.EffectivePermissions(ctx, user.ID, GlobalScope())
	if err != nil {
		t.Fatalf("EffectivePermissions failed: %v", err)
	}
	if set["content:update"] != LevelAll {
		t.Errorf("Expected union to surface level all, got %s", set["content:update"])
	}
}

func TestEffectivePermissionsDirectGrantOverlay(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	createTestDefinition(t, store, "order:read", LevelNone)

	user := createTestUser(t, store, "alice@test", false)

	// Direct grants overlay the defaults regardless of their recorded
	// scope; the enumeration path does not filter them.
	courseID := "algebra-101"
	up := &UserPermission{
		UserID:    user.ID,
		Key:       "order:read",
		Level:     LevelOwn,
		ScopeType: ScopeCourse,
		ScopeID:   &courseID,
	}
	if err := store.UpsertUserPermission(ctx, up); err != nil {
		t.Fatalf("Failed to insert direct grant: %v", err)
	}

	set, err := engine.EffectivePermissions(ctx, user.ID, GlobalScope())
	if err != nil {
		t.Fatalf("EffectivePermissions failed: %v", err)
	}
	if set["order:read"] != LevelOwn {
		t.Errorf("Expected direct grant to overlay the default, got %s", set["order:read"])
	}
}

func TestEffectivePermissionsRoleRaisesDirectGrant(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)
	ctx := context.Background()

	createTestDefinition(t, store, "content:update", LevelNone)

	user := createTestUser(t, store, "alice@test", false)

	up := &UserPermission{
		UserID:    user.ID,
		Key:       "content:update",
		Level:     LevelOwn,
		ScopeType: ScopeGlobal,
	}
	if err := store.UpsertUserPermission(ctx, up); err != nil {
		t.Fatalf("Failed to insert direct grant: %v", err)
	}

	role := createTestRole(t, store, "Editor", 50,
		PermissionGrant{Key: "content:update", Level: LevelAll},
	)
	assignTestRole(t, store, user.ID, role.ID, GlobalScope())

	set, err := engine.EffectivePermissions(ctx, user.ID, GlobalScope())
	if err != nil {
		t.Fatalf("EffectivePermissions failed: %v", err)
	}
	if set["content:update"] != LevelAll {
		t.Errorf("Expected role grant to dominate the direct grant, got %s", set["content:update"])
	}
}
