package permissions

// ResolveScopes returns the ordered list of scopes to consult for a
// request: the requested scope first, then the global fallback. Grants
// recorded under the global scope apply regardless of the requested
// scope, so every non-global request also checks global.
func ResolveScopes(requested Scope) []Scope {
	if requested.Type == "" {
		requested = GlobalScope()
	}
	if requested.IsGlobal() {
		return []Scope{GlobalScope()}
	}
	return []Scope{requested, GlobalScope()}
}

// assignmentMatches reports whether an assignment recorded at
// (ScopeType, ScopeID) applies to the requested scope. An assignment
// with no concrete ID is scope-type-wide and matches any requested ID;
// a request with no concrete ID only matches unscoped assignments.
func assignmentMatches(a RoleAssignment, s Scope) bool {
	if a.ScopeType != s.Type {
		return false
	}
	if a.ScopeID == nil {
		return true
	}
	return s.ID != "" && *a.ScopeID == s.ID
}
