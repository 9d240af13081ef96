package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/lmskit/gatekeeper/pkg/audit"
	"github.com/lmskit/gatekeeper/pkg/httputil"
	"github.com/lmskit/gatekeeper/pkg/permissions"
)

// RoleResponse is a role together with its grant set
type RoleResponse struct {
	Role        *permissions.Role            `json:"role"`
	Permissions []permissions.RolePermission `json:"permissions"`
}

// createRole handles POST /v1/roles
func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	var params permissions.CreateRoleParams
	if !httputil.ParseJSONOrError(w, r, &params) {
		return
	}
	if !httputil.RequireNonEmpty(w, params.Name, "name") {
		return
	}
	if params.Scope == "" {
		params.Scope = permissions.ScopeGlobal
	}
	if !params.Scope.Valid() {
		httputil.WriteBadRequest(w, "invalid scope")
		return
	}

	role, err := s.admin.CreateRole(r.Context(), params)
	if err != nil {
		s.auditMutation(r, audit.ActionRoleCreate, "role", params.Name, audit.StatusFailure, err)
		httputil.WriteInternalError(w, err)
		return
	}

	s.auditMutation(r, audit.ActionRoleCreate, "role", strconv.FormatInt(role.ID, 10), audit.StatusSuccess, nil)
	httputil.WriteCreated(w, RoleResponse{Role: role, Permissions: grantsToRolePermissions(role.ID, params.Permissions)})
}

// listRoles handles GET /v1/roles
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.store.ListRoles(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// getRole handles GET /v1/roles/{id}
func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := s.store.GetRole(r.Context(), roleID)
	if err != nil {
		if errors.Is(err, permissions.ErrRoleNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	grants, err := s.store.ListRolePermissions(r.Context(), roleID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, RoleResponse{Role: role, Permissions: grants})
}

// UpdateRoleRequest patches role fields; a non-nil permissions list
// replaces the role's whole grant set.
type UpdateRoleRequest struct {
	permissions.RoleUpdate
	Permissions []permissions.PermissionGrant `json:"permissions,omitempty"`
}

// updateRole handles PATCH /v1/roles/{id}
func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := s.admin.UpdateRole(r.Context(), roleID, req.RoleUpdate, req.Permissions)
	if err != nil {
		s.auditMutation(r, audit.ActionRoleUpdate, "role", strconv.FormatInt(roleID, 10), audit.StatusFailure, err)
		switch {
		case errors.Is(err, permissions.ErrRoleNotFound):
			httputil.WriteNotFoundError(w, "role not found")
		case errors.Is(err, permissions.ErrSystemRole):
			httputil.WriteConflict(w, "system roles cannot be modified")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	grants, err := s.store.ListRolePermissions(r.Context(), roleID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.auditMutation(r, audit.ActionRoleUpdate, "role", strconv.FormatInt(roleID, 10), audit.StatusSuccess, nil)
	httputil.WriteSuccess(w, RoleResponse{Role: role, Permissions: grants})
}

// deleteRole handles DELETE /v1/roles/{id}
func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.admin.DeleteRole(r.Context(), roleID); err != nil {
		s.auditMutation(r, audit.ActionRoleDelete, "role", strconv.FormatInt(roleID, 10), audit.StatusFailure, err)
		switch {
		case errors.Is(err, permissions.ErrRoleNotFound):
			httputil.WriteNotFoundError(w, "role not found")
		case errors.Is(err, permissions.ErrSystemRole):
			httputil.WriteConflict(w, "system roles cannot be deleted")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	s.auditMutation(r, audit.ActionRoleDelete, "role", strconv.FormatInt(roleID, 10), audit.StatusSuccess, nil)
	httputil.WriteNoContent(w)
}

func grantsToRolePermissions(roleID int64, grants []permissions.PermissionGrant) []permissions.RolePermission {
	out := make([]permissions.RolePermission, 0, len(grants))
	for _, g := range grants {
		if g.Level == permissions.LevelNone {
			continue
		}
		out = append(out, permissions.RolePermission{RoleID: roleID, Key: g.Key, Level: g.Level})
	}
	return out
}
