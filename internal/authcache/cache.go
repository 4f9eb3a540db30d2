// Package authcache memoizes authorization lookups (effective permissions,
// role levels, accessible-project sets) in Redis under short TTLs so checks
// stay cheap under repeated calls. Invalidation is TTL expiry plus explicit
// version bumps triggered by administrative mutations, so a privilege
// revocation is never masked beyond the configured TTL.
package authcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	globalVersionKey = "authz:version"
	userVersionKey   = "authz:version:user:%d"
)

// Tier selects the TTL applied to a cached entry.
type Tier int

// TTL tiers.
const (
	TierShort Tier = iota
	TierMedium
	TierLong
)

// Cache wraps Redis based memoization with per-user and global versioning.
type Cache struct {
	client *redis.Client
	short  time.Duration
	medium time.Duration
	long   time.Duration
	group  singleflight.Group
}

// New instantiates the cache helper. A nil client disables caching; every
// Fetch then calls its loader directly. An unreachable server degrades the
// same way, so lookups survive a cache outage.
func New(client *redis.Client, short, medium, long time.Duration) *Cache {
	if short <= 0 {
		short = 60 * time.Second
	}
	if medium <= 0 {
		medium = 300 * time.Second
	}
	if long <= 0 {
		long = 3600 * time.Second
	}
	return &Cache{client: client, short: short, medium: medium, long: long}
}

func (c *Cache) ttl(tier Tier) time.Duration {
	switch tier {
	case TierMedium:
		return c.medium
	case TierLong:
		return c.long
	default:
		return c.short
	}
}

func scopeToken(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

// BuildKey composes a cache key for the given lookup kind and scope tuple,
// embedding the current global and per-user versions. A version bump makes
// every previously written key unreachable. When Redis cannot serve the
// version counters the key comes back empty, which makes Fetch bypass the
// cache rather than write entries under an unversioned key.
func (c *Cache) BuildKey(ctx context.Context, kind string, userID int64, companyID, projectID *int64) (string, error) {
	base := fmt.Sprintf("authz:%s:%d:%s:%s", kind, userID, scopeToken(companyID), scopeToken(projectID))
	if c == nil || c.client == nil {
		return base, nil
	}
	gver, err := c.version(ctx, globalVersionKey)
	if err != nil {
		return "", nil
	}
	uver, err := c.version(ctx, fmt.Sprintf(userVersionKey, userID))
	if err != nil {
		return "", nil
	}
	return fmt.Sprintf("%s:v%d.%d", base, gver, uver), nil
}

func (c *Cache) version(ctx context.Context, key string) (int64, error) {
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Fetch loads a cached value or populates it using the loader. Concurrent
// misses for the same key are collapsed into a single loader call. Redis
// outages degrade to direct loader calls instead of failing the lookup:
// an empty key, a failed read, or a failed write all fall through to the
// loader, so authorization keeps resolving from the store when the cache
// is unreachable.
func (c *Cache) Fetch(ctx context.Context, tier Tier, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("authcache: loader required")
	}
	if c == nil || c.client == nil || key == "" {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return reencode(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return reencode(value, dest)
	}
	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		// Best effort write; a cache outage must not fail the lookup.
		_ = c.client.Set(ctx, key, data, c.ttl(tier)).Err()
		return data, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// InvalidateUser drops every cached entry for one user by bumping the user's
// version counter. Called when the user's role assignments change.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, fmt.Sprintf(userVersionKey, userID)).Err()
}

// InvalidateAll drops every cached authorization entry by bumping the global
// version counter. Called when a role's permission set is replaced, since
// that affects every holder of the role.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, globalVersionKey).Err()
}

func reencode(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
