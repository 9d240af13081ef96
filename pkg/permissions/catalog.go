package permissions

// Permission keys follow the "resource:action" convention. The catalog
// below is the platform's built-in set; deployments may add their own
// definitions alongside it.

// Well-known permission keys referenced from code.
const (
	PermUserRead    = "user:read"
	PermUserUpdate  = "user:update"
	PermGroupRead   = "group:read"
	PermContentRead = "content:read"
	PermOrderRead   = "order:read"
	PermAdminAccess = "admin:access"
	PermAdminRoles  = "admin:roles"
	PermAdminGrants = "admin:permissions"
)

type catalogEntry struct {
	key          string
	name         string
	description  string
	defaultLevel Level
	category     string
}

// DefaultDefinitions returns the built-in permission catalog. Each entry
// carries the default level used when a user has no grant for the key.
func DefaultDefinitions() []Definition {
	entries := []catalogEntry{
		// User management
		{"user:create", "Create Users", "Create new user accounts", LevelNone, "user"},
		{"user:read", "View Users", "View user profiles", LevelOwn, "user"},
		{"user:update", "Edit Users", "Edit user profiles", LevelOwn, "user"},
		{"user:delete", "Delete Users", "Delete user accounts", LevelNone, "user"},

		// Groups
		{"group:create", "Create Groups", "Create new groups", LevelNone, "group"},
		{"group:read", "View Groups", "View groups and their members", LevelGroup, "group"},
		{"group:update", "Edit Groups", "Edit group settings and membership", LevelNone, "group"},
		{"group:delete", "Delete Groups", "Delete groups", LevelNone, "group"},

		// Content
		{"content:create", "Create Content", "Author new content", LevelNone, "content"},
		{"content:read", "View Content", "View published content", LevelAll, "content"},
		{"content:update", "Edit Content", "Edit existing content", LevelOwn, "content"},
		{"content:delete", "Delete Content", "Delete content", LevelOwn, "content"},

		// Calendar
		{"calendar:create", "Create Calendar Entries", "Create calendar entries", LevelOwn, "calendar"},
		{"calendar:read", "View Calendars", "View calendar entries", LevelGroup, "calendar"},
		{"calendar:update", "Edit Calendar Entries", "Edit calendar entries", LevelOwn, "calendar"},
		{"calendar:delete", "Delete Calendar Entries", "Delete calendar entries", LevelOwn, "calendar"},

		// Events
		{"event:create", "Create Events", "Schedule new events", LevelNone, "event"},
		{"event:read", "View Events", "View scheduled events", LevelAll, "event"},
		{"event:update", "Edit Events", "Edit scheduled events", LevelOwn, "event"},
		{"event:delete", "Cancel Events", "Cancel scheduled events", LevelOwn, "event"},

		// Courses
		{"course:create", "Create Courses", "Create new courses", LevelNone, "course"},
		{"course:read", "View Courses", "View course material", LevelAll, "course"},
		{"course:update", "Edit Courses", "Edit course material", LevelNone, "course"},
		{"course:delete", "Delete Courses", "Delete courses", LevelNone, "course"},

		// Products
		{"product:create", "Create Products", "Create products in the catalog", LevelNone, "product"},
		{"product:read", "View Products", "View the product catalog", LevelAll, "product"},
		{"product:update", "Edit Products", "Edit catalog products", LevelNone, "product"},
		{"product:delete", "Delete Products", "Remove catalog products", LevelNone, "product"},

		// Orders
		{"order:create", "Create Orders", "Place orders", LevelOwn, "order"},
		{"order:read", "View Orders", "View orders", LevelOwn, "order"},
		{"order:update", "Edit Orders", "Modify orders", LevelNone, "order"},
		{"order:delete", "Cancel Orders", "Cancel orders", LevelNone, "order"},

		// Administration
		{"admin:access", "Admin Access", "Access administrative interfaces", LevelNone, "admin"},
		{"admin:roles", "Manage Roles", "Create and edit roles", LevelNone, "admin"},
		{"admin:permissions", "Manage Permissions", "Grant and revoke permissions", LevelNone, "admin"},
	}

	defs := make([]Definition, 0, len(entries))
	for _, e := range entries {
		resource, action := splitKey(e.key)
		defs = append(defs, Definition{
			Key:          e.key,
			Name:         e.name,
			Description:  e.description,
			Resource:     resource,
			Action:       action,
			DefaultLevel: e.defaultLevel,
			Category:     e.category,
			IsSystem:     true,
		})
	}
	return defs
}

func splitKey(key string) (resource, action string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
