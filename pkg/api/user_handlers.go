package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/lmskit/gatekeeper/pkg/audit"
	"github.com/lmskit/gatekeeper/pkg/httputil"
	"github.com/lmskit/gatekeeper/pkg/permissions"
)

// RegisterUserRequest is the body of POST /v1/users
type RegisterUserRequest struct {
	Subject string `json:"subject"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
}

// registerUser handles POST /v1/users. Registration is idempotent on
// the subject; re-registering an existing subject returns the stored
// user unchanged.
func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Subject, "subject") {
		return
	}

	user, err := s.admin.EnsureUserRegistered(r.Context(), req.Subject, req.Name, req.Email)
	if err != nil {
		s.auditMutation(r, audit.ActionUserRegister, "user", req.Subject, audit.StatusFailure, err)
		httputil.WriteInternalError(w, err)
		return
	}

	s.auditMutation(r, audit.ActionUserRegister, "user", strconv.FormatInt(user.ID, 10), audit.StatusSuccess, nil)
	httputil.WriteCreated(w, user)
}

// getUser handles GET /v1/users/{id}
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, permissions.ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, user)
}

// UserRoleResponse is one role assignment joined with its role
type UserRoleResponse struct {
	Assignment permissions.RoleAssignment `json:"assignment"`
	Role       *permissions.Role          `json:"role"`
}

// listUserRoles handles GET /v1/users/{id}/roles
func (s *Server) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	assignments, err := s.store.ListAssignmentsForUser(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	out := make([]UserRoleResponse, 0, len(assignments))
	for _, assignment := range assignments {
		role, err := s.store.GetRole(r.Context(), assignment.RoleID)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		out = append(out, UserRoleResponse{Assignment: assignment, Role: role})
	}

	httputil.WriteSuccess(w, out)
}

// AssignRoleRequest is the body of POST /v1/users/{id}/roles
type AssignRoleRequest struct {
	RoleID    int64                 `json:"role_id"`
	ScopeType permissions.ScopeType `json:"scope_type,omitempty"`
	ScopeID   string                `json:"scope_id,omitempty"`
}

// assignRole handles POST /v1/users/{id}/roles
func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req AssignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID == 0 {
		httputil.WriteBadRequest(w, "role_id is required")
		return
	}

	scope := permissions.Scope{Type: req.ScopeType, ID: req.ScopeID}
	if scope.Type == "" {
		scope = permissions.GlobalScope()
	}
	if !scope.Type.Valid() {
		httputil.WriteBadRequest(w, "invalid scope_type")
		return
	}

	assignment, err := s.admin.AssignRole(r.Context(), userID, req.RoleID, scope, s.actorID(r))
	if err != nil {
		s.auditMutation(r, audit.ActionRoleAssign, "role_assignment", strconv.FormatInt(req.RoleID, 10), audit.StatusFailure, err)
		switch {
		case errors.Is(err, permissions.ErrRoleNotFound):
			httputil.WriteNotFoundError(w, "role not found")
		case errors.Is(err, permissions.ErrUserNotFound):
			httputil.WriteNotFoundError(w, "user not found")
		case errors.Is(err, permissions.ErrRoleNotAssignable):
			httputil.WriteConflict(w, "role is not assignable")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	s.auditMutation(r, audit.ActionRoleAssign, "role_assignment", strconv.FormatInt(assignment.ID, 10), audit.StatusSuccess, nil)
	httputil.WriteCreated(w, assignment)
}

// revokeRole handles DELETE /v1/users/{id}/roles/{roleID}. Scope is
// taken from query parameters so scoped assignments can be revoked
// without a request body.
func (s *Server) revokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "roleID")
	if !ok {
		return
	}

	scope := permissions.Scope{
		Type: permissions.ScopeType(httputil.ParseQueryString(r, "scope_type", "")),
		ID:   httputil.ParseQueryString(r, "scope_id", ""),
	}
	if scope.Type == "" {
		scope = permissions.GlobalScope()
	}
	if !scope.Type.Valid() {
		httputil.WriteBadRequest(w, "invalid scope_type")
		return
	}

	revoked, err := s.admin.RevokeRole(r.Context(), userID, roleID, scope)
	if err != nil {
		s.auditMutation(r, audit.ActionRoleRevoke, "role_assignment", strconv.FormatInt(roleID, 10), audit.StatusFailure, err)
		httputil.WriteInternalError(w, err)
		return
	}
	if !revoked {
		httputil.WriteNotFoundError(w, "role assignment not found")
		return
	}

	s.auditMutation(r, audit.ActionRoleRevoke, "role_assignment", strconv.FormatInt(roleID, 10), audit.StatusSuccess, nil)
	httputil.WriteNoContent(w)
}

// listUserGrants handles GET /v1/users/{id}/permissions
func (s *Server) listUserGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	grants, err := s.store.ListUserPermissions(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, grants)
}

// GrantPermissionRequest is the body of PUT /v1/users/{id}/permissions
type GrantPermissionRequest struct {
	Permission string                `json:"permission"`
	Level      permissions.Level     `json:"level"`
	ScopeType  permissions.ScopeType `json:"scope_type,omitempty"`
	ScopeID    string                `json:"scope_id,omitempty"`
}

// grantPermission handles PUT /v1/users/{id}/permissions. Granting a
// level of none removes the direct grant.
func (s *Server) grantPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req GrantPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Permission, "permission") {
		return
	}
	if !req.Level.Valid() {
		httputil.WriteBadRequest(w, "invalid level")
		return
	}

	scope := permissions.Scope{Type: req.ScopeType, ID: req.ScopeID}
	if scope.Type == "" {
		scope = permissions.GlobalScope()
	}
	if !scope.Type.Valid() {
		httputil.WriteBadRequest(w, "invalid scope_type")
		return
	}

	err := s.admin.GrantPermission(r.Context(), userID, req.Permission, req.Level, scope, s.actorID(r))
	if err != nil {
		s.auditMutation(r, audit.ActionPermissionGrant, "user_permission", req.Permission, audit.StatusFailure, err)
		switch {
		case errors.Is(err, permissions.ErrUserNotFound):
			httputil.WriteNotFoundError(w, "user not found")
		case errors.Is(err, permissions.ErrPermissionNotFound):
			httputil.WriteBadRequest(w, "unknown permission key")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	s.auditMutation(r, audit.ActionPermissionGrant, "user_permission", req.Permission, audit.StatusSuccess, nil)
	httputil.WriteNoContent(w)
}
