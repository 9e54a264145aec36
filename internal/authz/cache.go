package authz

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheTimeout = 3 * time.Second

// MemoryCache keeps permission sets in-process (single instance only).
type MemoryCache struct {
	mu    sync.RWMutex
	roles map[string][]string
}

// NewMemoryCache builds an in-memory permission cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{roles: make(map[string][]string)}
}

// Get returns the cached permission set for a role.
func (c *MemoryCache) Get(_ context.Context, role string) ([]string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	perms, ok := c.roles[role]
	return perms, ok, nil
}

// Set stores a role's permission set.
func (c *MemoryCache) Set(_ context.Context, role string, permissions []string) error {
	c.mu.Lock()
	c.roles[role] = append([]string(nil), permissions...)
	c.mu.Unlock()
	return nil
}

// Invalidate drops a role's cached set.
func (c *MemoryCache) Invalidate(_ context.Context, role string) error {
	c.mu.Lock()
	delete(c.roles, role)
	c.mu.Unlock()
	return nil
}

// RedisCache shares permission sets across instances via Redis sets.
// An empty permission set is marked with a sentinel member so absence
// of a key means "not cached", not "no permissions".
type RedisCache struct {
	client *redis.Client
}

const emptyMarker = "\x00none"

// NewRedisCache builds a Redis-backed permission cache.
func NewRedisCache(addr, password string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// Get returns the cached permission set for a role.
func (c *RedisCache) Get(ctx context.Context, role string) ([]string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	members, err := c.client.SMembers(ctx, roleKey(role)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(members) == 0 {
		return nil, false, nil
	}
	perms := make([]string, 0, len(members))
	for _, m := range members {
		if m == emptyMarker {
			continue
		}
		perms = append(perms, m)
	}
	return perms, true, nil
}

// Set stores a role's permission set.
func (c *RedisCache) Set(ctx context.Context, role string, permissions []string) error {
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	members := make([]any, 0, len(permissions)+1)
	members = append(members, emptyMarker)
	for _, p := range permissions {
		members = append(members, p)
	}
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, roleKey(role))
	pipe.SAdd(ctx, roleKey(role), members...)
	_, err := pipe.Exec(ctx)
	return err
}

// Invalidate drops a role's cached set.
func (c *RedisCache) Invalidate(ctx context.Context, role string) error {
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	return c.client.Del(ctx, roleKey(role)).Err()
}

func roleKey(role string) string {
	return "authz:role:" + role
}
