package api

import (
	"net/http"
	"time"

	"github.com/lmskit/gatekeeper/pkg/httputil"
	"github.com/lmskit/gatekeeper/pkg/permissions"
)

// CheckAccessRequest is the body of POST /v1/access/check
type CheckAccessRequest struct {
	UserID          int64                 `json:"user_id"`
	Permission      string                `json:"permission"`
	ScopeType       permissions.ScopeType `json:"scope_type,omitempty"`
	ScopeID         string                `json:"scope_id,omitempty"`
	ResourceOwnerID *int64                `json:"resource_owner_id,omitempty"`
}

// CheckAccessResponse is the decision for one check
type CheckAccessResponse struct {
	Allowed bool `json:"allowed"`
}

// checkAccess handles POST /v1/access/check
func (s *Server) checkAccess(w http.ResponseWriter, r *http.Request) {
	var req CheckAccessRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	if !httputil.RequireNonEmpty(w, req.Permission, "permission") {
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

	start := time.Now()
	allowed, err := s.engine.CheckAccess(r.Context(), req.UserID, req.Permission, scope, req.ResourceOwnerID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordAccessCheck(allowed, time.Since(start))
	}

	httputil.WriteSuccess(w, CheckAccessResponse{Allowed: allowed})
}

// EffectivePermissionsResponse enumerates a user's resolved levels
type EffectivePermissionsResponse struct {
	UserID      int64                        `json:"user_id"`
	Scope       string                       `json:"scope"`
	Permissions map[string]permissions.Level `json:"permissions"`
}

// effectivePermissions handles GET /v1/access/permissions
func (s *Server) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.ParseQueryInt64(r, "user_id", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if userID == 0 {
		httputil.WriteBadRequest(w, "user_id is required")
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

	set, err := s.engine.EffectivePermissions(r.Context(), userID, scope)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.EffectiveQueriesTotal.Inc()
	}

	httputil.WriteSuccess(w, EffectivePermissionsResponse{
		UserID:      userID,
		Scope:       scope.String(),
		Permissions: set,
	})
}

// listDefinitions handles GET /v1/permissions/definitions
func (s *Server) listDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.store.ListDefinitions(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, defs)
}
