// Package storage bootstraps the service's backing stores: the
// PostgreSQL connection pool that holds users, roles, and grants, and
// the Redis client backing the decision cache.
//
// Both OpenDatabase and OpenRedis verify connectivity before
// returning, so a misconfigured deployment fails at startup rather
// than on the first request. Config carries the pool and cache tuning
// knobs; DefaultConfig supplies production-reasonable defaults that
// the config package overrides from the environment.
package storage
