// Package permissions implements scope-aware permission resolution for the
// Gatekeeper access control service.
//
// # Overview
//
// This package answers two questions about a user: "may they do X to this
// resource?" and "what may they do at all?". Access derives from four
// sources, merged deterministically:
//
//   1. Platform admin flag: unconditional allow, checked first
//   2. Direct user grants: per-user permission overrides
//   3. Role assignments: named permission bundles bound to a user at a scope
//   4. Global fallback: global-scope assignments apply everywhere
//
// # Permission Levels
//
// Every grant carries a level describing how far it reaches:
//
//	LevelNone   - no access
//	LevelOwn    - access to resources the user owns
//	LevelGroup  - access to resources owned by members of a shared group
//	LevelAll    - access to every resource
//
// Levels are strictly ordered (none < own < group < all). Dominant picks
// the stronger of two levels; ties go to the first argument.
//
// # Scopes
//
// Grants and assignments live at a scope, a (type, id) pair:
//
//	permissions.Scope{Type: permissions.ScopeCourse, ID: "algebra-101"}
//
// The global scope has no ID and acts as a universal fallback: a role
// assigned at global scope applies to every request regardless of the
// scope asked about. An assignment whose scope type matches the request
// but whose ID is empty covers every ID of that type.
//
// # Resolution Strategies
//
// The Engine deliberately resolves the two questions with different merge
// strategies, and they can disagree for the same user and key:
//
// CheckAccess (single decision) walks the sources in precedence order and
// stops at the first match. Among roles, the highest-priority role that
// mentions the key wins outright, even when a lower-priority role would
// have granted more:
//
//	allowed, err := engine.CheckAccess(ctx, userID, "content:update",
//		permissions.Scope{Type: permissions.ScopeCourse, ID: courseID},
//		&ownerID)
//
// EffectivePermissions (full set) starts from the catalog's default
// levels, overlays direct grants, then unions every assigned role's
// grants by dominance, ignoring priority:
//
//	set, err := engine.EffectivePermissions(ctx, userID,
//		permissions.GlobalScope())
//
// # Roles
//
// Roles bundle grants under a name with a priority. Seed installs two
// system roles, Admin (priority 100) and User (priority 10), which cannot
// be edited or deleted. Custom roles are managed through the Admin
// service:
//
//	admin := permissions.NewAdmin(store, cache)
//	role, err := admin.CreateRole(ctx, permissions.CreateRoleParams{
//		Name:         "Editor",
//		Scope:        permissions.ScopeCourse,
//		Priority:     50,
//		IsAssignable: true,
//		Permissions: []permissions.PermissionGrant{
//			{Key: "content:update", Level: permissions.LevelAll},
//		},
//	})
//
// Assigning and revoking are idempotent: repeating an assignment returns
// the existing one, and revoking a missing assignment succeeds without
// effect.
//
// # Ownership and Groups
//
// LevelOwn compares the caller against the resource owner passed to
// CheckAccess. LevelGroup behaves like LevelOwn until a
// GroupMembershipResolver is wired in with WithGroupResolver, at which
// point shared group membership also satisfies the grant.
//
// # Caching
//
// DecisionCache stores resolved decisions in Redis with a TTL. Only
// owner-independent decisions are cached. Admin mutations invalidate the
// affected user's entries; role-level changes flush the cache.
//
// # Storage
//
// Store is the persistence interface; SQLStore implements it over
// database/sql. Production runs PostgreSQL, tests run in-memory SQLite
// against the same queries. RunMigrations installs the schema and Seed
// installs the catalog and system roles:
//
//	if err := permissions.RunMigrations(ctx, db); err != nil { ... }
//	store := permissions.NewSQLStore(db)
//	if err := permissions.Seed(ctx, store); err != nil { ... }
//	engine := permissions.NewEngine(store)
package permissions
