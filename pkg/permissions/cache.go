package permissions

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CacheStats receives cache outcome counts. Satisfied by the service
// metrics; nil means no counting.
type CacheStats interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// DecisionCache stores resolved access decisions in Redis. A cache
// failure is never surfaced to the caller; the engine falls back to the
// store on any miss or error.
type DecisionCache struct {
	client *redis.Client
	ttl    time.Duration
	stats  CacheStats
}

// NewDecisionCache creates a cache over an existing Redis client. ttl
// bounds how long a decision may outlive the grants that produced it.
func NewDecisionCache(client *redis.Client, ttl time.Duration) *DecisionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DecisionCache{client: client, ttl: ttl}
}

// WithStats attaches an outcome counter to the cache and returns the
// cache for chaining during wiring.
func (c *DecisionCache) WithStats(stats CacheStats) *DecisionCache {
	c.stats = stats
	return c
}

func decisionKey(userID int64, permissionKey string, scope Scope) string {
	return fmt.Sprintf("access:%d:%s:%s:%s", userID, permissionKey, scope.Type, scope.ID)
}

// Get returns a cached decision. The second result reports whether a
// usable value was found.
func (c *DecisionCache) Get(ctx context.Context, userID int64, permissionKey string, scope Scope) (allowed bool, ok bool) {
	val, err := c.client.Get(ctx, decisionKey(userID, permissionKey, scope)).Result()
	if err != nil {
		// redis.Nil and transport errors are both treated as a miss.
		return false, c.miss()
	}
	switch val {
	case "1":
		return true, c.hit()
	case "0":
		return false, c.hit()
	default:
		return false, c.miss()
	}
}

func (c *DecisionCache) hit() bool {
	if c.stats != nil {
		c.stats.RecordCacheHit()
	}
	return true
}

func (c *DecisionCache) miss() bool {
	if c.stats != nil {
		c.stats.RecordCacheMiss()
	}
	return false
}

// Set records a decision with the configured TTL. Errors are dropped.
func (c *DecisionCache) Set(ctx context.Context, userID int64, permissionKey string, scope Scope, allowed bool) {
	val := "0"
	if allowed {
		val = "1"
	}
	c.client.Set(ctx, decisionKey(userID, permissionKey, scope), val, c.ttl)
}

// InvalidateUser drops every cached decision for one user.
func (c *DecisionCache) InvalidateUser(ctx context.Context, userID int64) {
	c.deleteByPattern(ctx, fmt.Sprintf("access:%d:*", userID))
}

// InvalidateAll drops every cached decision. Used after role-level
// mutations where the affected user set is unknown.
func (c *DecisionCache) InvalidateAll(ctx context.Context) {
	c.deleteByPattern(ctx, "access:*")
}

func (c *DecisionCache) deleteByPattern(ctx context.Context, pattern string) {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			c.client.Del(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
