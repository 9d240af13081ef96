// Package middleware wires authentication, permission gating, and
// rate limiting into the HTTP stack.
//
// AuthMiddleware establishes the caller's Identity from either a
// gk_-prefixed API token or an OIDC ID token and stores it in the
// request context. PermissionMiddleware then gates individual routes
// on a permission key resolved through the decision engine.
// RateLimitMiddleware applies fixed-window limits counted in Redis,
// per user for authenticated callers and per IP otherwise.
//
// Order matters: rate limiting runs outermost, then auth, then the
// permission gates on protected routes.
package middleware
