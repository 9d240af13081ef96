package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lmskit/gatekeeper/pkg/audit"
	"github.com/lmskit/gatekeeper/pkg/auth"
	"github.com/lmskit/gatekeeper/pkg/middleware"
	"github.com/lmskit/gatekeeper/pkg/observability"
	"github.com/lmskit/gatekeeper/pkg/permissions"
)

// Middleware bundles the optional HTTP middleware applied to the
// router. Nil fields are skipped, which tests use to exercise
// handlers directly.
type Middleware struct {
	// RateLimit runs outermost on every route.
	RateLimit func(http.Handler) http.Handler
	// Authenticate establishes the caller identity on every route.
	Authenticate func(http.Handler) http.Handler
	// RequirePermission gates a route on a permission key.
	RequirePermission func(permissionKey string) func(http.Handler) http.Handler
	// Observe carries request ID, logging, and metrics middleware.
	Observe []func(http.Handler) http.Handler
}

// Deps are the collaborators the API server needs
type Deps struct {
	Store    permissions.Store
	Engine   *permissions.Engine
	Admin    *permissions.Admin
	Tokens   *auth.TokenStore
	Recorder *audit.Recorder
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Mw       Middleware
}

// Server exposes the permission engine over HTTP
type Server struct {
	router   *mux.Router
	store    permissions.Store
	engine   *permissions.Engine
	admin    *permissions.Admin
	tokens   *auth.TokenStore
	recorder *audit.Recorder
	logger   *observability.Logger
	metrics  *observability.Metrics
	mw       Middleware
}

// NewServer creates the API server and mounts all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		store:    deps.Store,
		engine:   deps.Engine,
		admin:    deps.Admin,
		tokens:   deps.Tokens,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		mw:       deps.Mw,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	for _, observe := range s.mw.Observe {
		s.router.Use(observe)
	}
	if s.mw.RateLimit != nil {
		s.router.Use(s.mw.RateLimit)
	}
	if s.mw.Authenticate != nil {
		s.router.Use(s.mw.Authenticate)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Decision endpoints
	v1.HandleFunc("/access/check", s.checkAccess).Methods("POST")
	v1.HandleFunc("/access/permissions", s.effectivePermissions).Methods("GET")

	// Permission catalog
	v1.HandleFunc("/permissions/definitions", s.listDefinitions).Methods("GET")

	// Role management
	v1.Handle("/roles", s.gate(permissions.PermAdminRoles, s.createRole)).Methods("POST")
	v1.HandleFunc("/roles", s.listRoles).Methods("GET")
	v1.HandleFunc("/roles/{id}", s.getRole).Methods("GET")
	v1.Handle("/roles/{id}", s.gate(permissions.PermAdminRoles, s.updateRole)).Methods("PATCH")
	v1.Handle("/roles/{id}", s.gate(permissions.PermAdminRoles, s.deleteRole)).Methods("DELETE")

	// Users
	v1.HandleFunc("/users", s.registerUser).Methods("POST")
	v1.HandleFunc("/users/{id}", s.getUser).Methods("GET")
	v1.HandleFunc("/users/{id}/roles", s.listUserRoles).Methods("GET")
	v1.Handle("/users/{id}/roles", s.gate(permissions.PermAdminRoles, s.assignRole)).Methods("POST")
	v1.Handle("/users/{id}/roles/{roleID}", s.gate(permissions.PermAdminRoles, s.revokeRole)).Methods("DELETE")
	v1.HandleFunc("/users/{id}/permissions", s.listUserGrants).Methods("GET")
	v1.Handle("/users/{id}/permissions", s.gate(permissions.PermAdminGrants, s.grantPermission)).Methods("PUT")

	// Service API tokens
	v1.Handle("/users/{id}/tokens", s.gate(permissions.PermAdminAccess, s.createToken)).Methods("POST")
	v1.Handle("/users/{id}/tokens", s.gate(permissions.PermAdminAccess, s.listTokens)).Methods("GET")
	v1.Handle("/tokens/{id}", s.gate(permissions.PermAdminAccess, s.revokeToken)).Methods("DELETE")

	// Audit log
	v1.Handle("/audit", s.gate(permissions.PermAdminAccess, s.queryAudit)).Methods("GET")
}

// gate wraps a handler with a permission requirement when gating is
// configured.
func (s *Server) gate(permissionKey string, handler http.HandlerFunc) http.Handler {
	if s.mw.RequirePermission == nil {
		return handler
	}
	return s.mw.RequirePermission(permissionKey)(handler)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying mux for mounting extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// actorID returns the authenticated caller's user ID for audit
// entries, or nil on ungated test setups.
func (s *Server) actorID(r *http.Request) *int64 {
	identity := middleware.GetIdentity(r)
	if identity == nil || identity.UserID == 0 {
		return nil
	}
	id := identity.UserID
	return &id
}

// auditMutation records a mutation outcome, logging rather than
// failing the request when the audit write itself breaks.
func (s *Server) auditMutation(r *http.Request, action, resourceType, resourceID, status string, cause error) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordRequest(r, s.actorID(r), action, resourceType, resourceID, status, cause); err != nil {
		s.logger.WithError(err).Warn("failed to write audit entry")
	}
}
