// Package auth establishes who is calling before the permission
// engine decides what they may do.
//
// Two credential kinds are supported. Interactive callers present an
// OIDC ID token, verified by OIDCResolver against the configured
// issuer. Services present a long-lived API token minted by
// TokenStore: the plaintext has the form gk_<base64url random> and is
// returned exactly once; only its SHA-256 hash is persisted, with an
// 8-character prefix kept for listings.
//
// Both paths produce an Identity, which the middleware resolves to an
// internal user record and stores in the request context.
package auth
