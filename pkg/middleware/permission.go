package middleware

import (
	"context"
	"net/http"

	"github.com/lmskit/gatekeeper/pkg/audit"
	"github.com/lmskit/gatekeeper/pkg/httputil"
	"github.com/lmskit/gatekeeper/pkg/observability"
	"github.com/lmskit/gatekeeper/pkg/permissions"
)

// AccessChecker decides a single permission check. Implemented by
// permissions.Engine.
type AccessChecker interface {
	CheckAccess(ctx context.Context, userID int64, permissionKey string, scope permissions.Scope, resourceOwnerID *int64) (bool, error)
}

// PermissionMiddleware gates routes on a permission key resolved at
// global scope. It must run after AuthMiddleware.
type PermissionMiddleware struct {
	checker  AccessChecker
	recorder *audit.Recorder
	logger   *observability.Logger
}

// NewPermissionMiddleware creates the permission gate. recorder may
// be nil to skip audit logging of denials.
func NewPermissionMiddleware(checker AccessChecker, recorder *audit.Recorder, logger *observability.Logger) *PermissionMiddleware {
	return &PermissionMiddleware{
		checker:  checker,
		recorder: recorder,
		logger:   logger,
	}
}

// Require wraps a handler so only callers holding permissionKey reach
// it. Denials are audited; resolution errors surface as 500s rather
// than silent denials.
func (m *PermissionMiddleware) Require(permissionKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			allowed, err := m.checker.CheckAccess(r.Context(), identity.UserID, permissionKey, permissions.Scope{Type: permissions.ScopeGlobal}, nil)
			if err != nil {
				m.logger.WithError(err).WithField("permission", permissionKey).Error("permission check failed")
				httputil.WriteInternalError(w, err)
				return
			}

			if !allowed {
				if m.recorder != nil {
					if err := m.recorder.RecordRequest(r, &identity.UserID, audit.ActionAccessCheck, "route", r.URL.Path, audit.StatusDenied, nil); err != nil {
						m.logger.WithError(err).Warn("failed to audit denied request")
					}
				}
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
