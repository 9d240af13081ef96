// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
//
// # Response Helpers
//
// All responses are JSON with a uniform error shape:
//
//	httputil.WriteSuccess(w, role)            // 200 with body
//	httputil.WriteCreated(w, role)            // 201 with body
//	httputil.WriteNoContent(w)                // 204
//	httputil.WriteBadRequest(w, "name is required")
//	httputil.WriteNotFoundError(w, "role not found")
//	httputil.WriteInternalError(w, err)
//
// Errors serialize as {"error": "<message>"}.
//
// # Request Helpers
//
// Parsing helpers pair a plain variant with an OrError variant that
// writes the 400 response itself:
//
//	var req assignRoleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	if !ok {
//		return
//	}
//
// # Middleware
//
// The middleware here covers the generic HTTP concerns: request IDs
// (UUID, echoed in X-Request-ID), structured request logging, panic
// recovery, content-type enforcement, and body size limits. Compose
// them with Chain:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(router)
package httputil
