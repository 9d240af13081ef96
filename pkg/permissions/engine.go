package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Engine resolves permission questions against the store. It exposes the
// two read paths side by side because they deliberately merge grants
// differently:
//
//   - CheckAccess answers one yes/no question with strict
//     override-by-authority semantics: the highest-priority role that
//     mentions the key decides, even when that decision is a denial.
//   - EffectivePermissions enumerates everything a user could plausibly
//     do, unioning all applicable roles by level dominance so the UI
//     shows the most permissive view.
//
// Do not unify the two merge strategies; consumers depend on both.
type Engine struct {
	store  Store
	cache  *DecisionCache
	groups GroupMembershipResolver
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDecisionCache enables caching of CheckAccess results.
func WithDecisionCache(cache *DecisionCache) EngineOption {
	return func(e *Engine) { e.cache = cache }
}

// WithGroupResolver wires in group co-membership checks for LevelGroup
// grants. Without a resolver, LevelGroup behaves exactly like LevelOwn.
func WithGroupResolver(r GroupMembershipResolver) EngineOption {
	return func(e *Engine) { e.groups = r }
}

// NewEngine creates a permission resolution engine.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckAccess decides whether a user may perform the operation guarded by
// permissionKey at the given scope. resourceOwnerID, when known, enables
// LevelOwn grants to pass for the resource's owner.
//
// Resolution order, short-circuiting on the first grant:
//
//  1. Platform-admin override: an admin user passes everything.
//  2. Direct grant: the user's own grant for the key, if its recorded
//     scope matches the request. A non-matching or insufficient direct
//     grant does not deny; resolution continues.
//  3. Role grants: roles gathered for the requested scope plus the
//     global fallback, highest priority first. The first role that
//     mentions the key decides the outcome outright.
//
// Missing users, grants, or roles all resolve to a denial, never an
// error; a permission check must not crash the calling feature.
func (e *Engine) CheckAccess(ctx context.Context, userID int64, permissionKey string, scope Scope, resourceOwnerID *int64) (bool, error) {
	if scope.Type == "" {
		scope = GlobalScope()
	}

	// Only owner-independent decisions are safe to cache or serve from
	// cache: an "own" grant answers differently per resource, and an
	// ownerless denial must never answer for the actual owner.
	if e.cache != nil && resourceOwnerID == nil {
		if allowed, ok := e.cache.Get(ctx, userID, permissionKey, scope); ok {
			return allowed, nil
		}
	}

	allowed, err := e.resolveSingleDecision(ctx, userID, permissionKey, scope, resourceOwnerID)
	if err != nil {
		return false, err
	}

	if e.cache != nil && resourceOwnerID == nil {
		e.cache.Set(ctx, userID, permissionKey, scope, allowed)
	}

	return allowed, nil
}

// resolveSingleDecision implements the priority-first-match strategy.
func (e *Engine) resolveSingleDecision(ctx context.Context, userID int64, permissionKey string, scope Scope, resourceOwnerID *int64) (bool, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolving user: %w", err)
	}

	if user.IsAdmin {
		return true, nil
	}

	direct, err := e.store.GetUserPermission(ctx, userID, permissionKey)
	if err != nil {
		return false, fmt.Errorf("resolving direct grant: %w", err)
	}
	if direct != nil && directGrantMatches(direct, scope) {
		ok, err := e.levelSatisfied(ctx, direct.Level, userID, resourceOwnerID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	roles, err := e.gatherRoles(ctx, userID, scope)
	if err != nil {
		return false, fmt.Errorf("gathering roles: %w", err)
	}
	if len(roles) == 0 {
		return false, nil
	}

	sort.SliceStable(roles, func(i, j int) bool {
		return roles[i].Priority > roles[j].Priority
	})

	for _, role := range roles {
		rp, err := e.store.GetRolePermission(ctx, role.ID, permissionKey)
		if err != nil {
			return false, fmt.Errorf("resolving grant for role %q: %w", role.Name, err)
		}
		if rp != nil {
			// The highest-priority role that mentions the key wins
			// outright, even when the answer is no.
			return e.levelSatisfied(ctx, rp.Level, userID, resourceOwnerID)
		}
	}

	return false, nil
}

// levelSatisfied applies the sufficiency test for one grant. LevelGroup
// consults the group resolver when one is wired in; otherwise it falls
// back to strict owner equality, identical to LevelOwn.
func (e *Engine) levelSatisfied(ctx context.Context, level Level, userID int64, resourceOwnerID *int64) (bool, error) {
	isOwner := resourceOwnerID != nil && *resourceOwnerID == userID

	if level == LevelGroup && !isOwner && e.groups != nil && resourceOwnerID != nil {
		shared, err := e.groups.SharesGroup(ctx, userID, *resourceOwnerID)
		if err != nil {
			return false, fmt.Errorf("resolving group membership: %w", err)
		}
		return shared, nil
	}

	return hasRequiredAccess(level, isOwner), nil
}

// EffectivePermissions returns the complete permission map for a user as
// a UI would render it: every catalog key at its default level, overlaid
// by the user's direct grants, then dominance-merged with the grants of
// every role gathered for the scope.
func (e *Engine) EffectivePermissions(ctx context.Context, userID int64, scope Scope) (map[string]Level, error) {
	if scope.Type == "" {
		scope = GlobalScope()
	}
	return e.resolveEffectiveSet(ctx, userID, scope)
}

// resolveEffectiveSet implements the level-union strategy. Unlike the
// decision path it ignores role priority and direct-grant scope: all
// gathered roles contribute, and the highest level seen per key wins.
func (e *Engine) resolveEffectiveSet(ctx context.Context, userID int64, scope Scope) (map[string]Level, error) {
	result := make(map[string]Level)

	defs, err := e.store.ListDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing permission definitions: %w", err)
	}
	for _, def := range defs {
		result[def.Key] = def.DefaultLevel
	}

	directs, err := e.store.ListUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing direct grants: %w", err)
	}
	for _, up := range directs {
		result[up.Key] = up.Level
	}

	roles, err := e.gatherRoles(ctx, userID, scope)
	if err != nil {
		return nil, fmt.Errorf("gathering roles: %w", err)
	}

	for _, role := range roles {
		grants, err := e.store.ListRolePermissions(ctx, role.ID)
		if err != nil {
			return nil, fmt.Errorf("listing grants for role %q: %w", role.Name, err)
		}
		for _, g := range grants {
			result[g.Key] = Dominant(result[g.Key], g.Level)
		}
	}

	return result, nil
}

// gatherRoles resolves all roles applicable to a user for the requested
// scope plus the global fallback, deduplicated by role ID with the
// requested scope's assignments first. Order of insertion is only a
// dedup mechanism; precedence in the decision path is role priority.
func (e *Engine) gatherRoles(ctx context.Context, userID int64, scope Scope) ([]Role, error) {
	seen := make(map[int64]struct{})
	var roles []Role

	for _, s := range ResolveScopes(scope) {
		assignments, err := e.store.ListUserAssignments(ctx, userID, s.Type)
		if err != nil {
			return nil, err
		}
		for _, a := range assignments {
			if !assignmentMatches(a, s) {
				continue
			}
			if _, ok := seen[a.RoleID]; ok {
				continue
			}
			seen[a.RoleID] = struct{}{}

			role, err := e.store.GetRole(ctx, a.RoleID)
			if err != nil {
				// Dangling assignments are dropped, not fatal.
				if errors.Is(err, ErrRoleNotFound) {
					continue
				}
				return nil, err
			}
			roles = append(roles, *role)
		}
	}

	return roles, nil
}

// directGrantMatches reports whether a direct grant's recorded scope
// covers the requested one. A grant with no concrete scope ID covers the
// whole scope type, and a request without an ID accepts any recorded ID.
func directGrantMatches(up *UserPermission, scope Scope) bool {
	if up.ScopeType != scope.Type {
		return false
	}
	if scope.ID == "" || up.ScopeID == nil {
		return true
	}
	return *up.ScopeID == scope.ID
}
