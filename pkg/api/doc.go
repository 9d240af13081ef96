// Package api exposes the permission engine over HTTP.
//
// The server mounts everything under /v1. Decision endpoints
// (/access/check, /access/permissions) are read paths backed by the
// engine; role, user, token, and audit endpoints are management paths
// backed by the admin surface and gated on admin permissions. All
// mutations write audit entries; an audit write failure is logged but
// never fails the request that caused it.
package api
