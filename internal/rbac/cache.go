package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const permissionKeyPrefix = "rbac:perms:"

// PermissionCache stores effective permission sets in Redis. The freshness
// contract requires every role or permission mutation to invalidate the
// affected entries before the mutating call returns.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPermissionCache constructs a cache with the given entry TTL.
func NewPermissionCache(client *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{client: client, ttl: ttl}
}

func permissionKey(principalID int64) string {
	return fmt.Sprintf("%s%d", permissionKeyPrefix, principalID)
}

// Get returns the cached permission set, or ok=false on miss.
func (c *PermissionCache) Get(ctx context.Context, principalID int64) ([]string, bool) {
	raw, err := c.client.Get(ctx, permissionKey(principalID)).Bytes()
	if err != nil {
		return nil, false
	}
	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, false
	}
	return perms, true
}

// Set stores the permission set for a principal.
func (c *PermissionCache) Set(ctx context.Context, principalID int64, perms []string) error {
	raw, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, permissionKey(principalID), raw, c.ttl).Err()
}

// Invalidate drops the cached set for a single principal.
func (c *PermissionCache) Invalidate(ctx context.Context, principalID int64) error {
	return c.client.Del(ctx, permissionKey(principalID)).Err()
}

// Flush drops every cached permission set. Used after role-level mutations,
// which can affect any number of principals.
func (c *PermissionCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, permissionKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
