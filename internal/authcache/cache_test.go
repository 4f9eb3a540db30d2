package authcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, time.Minute, 5*time.Minute, time.Hour), mr
}

func TestFetchPopulatesAndReuses(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "perms", 7, nil, nil)
	require.NoError(t, err)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return []string{"billing.view"}, nil
	}

	var got []string
	require.NoError(t, cache.Fetch(ctx, TierShort, key, &got, loader))
	require.Equal(t, []string{"billing.view"}, got)

	got = nil
	require.NoError(t, cache.Fetch(ctx, TierShort, key, &got, loader))
	require.Equal(t, []string{"billing.view"}, got)
	require.Equal(t, 1, calls, "second fetch must hit the cache")
}

func TestFetchExpiresAfterTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "perms", 7, nil, nil)
	require.NoError(t, err)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}

	var got int
	require.NoError(t, cache.Fetch(ctx, TierShort, key, &got, loader))
	require.Equal(t, 1, got)

	mr.FastForward(2 * time.Minute)

	require.NoError(t, cache.Fetch(ctx, TierShort, key, &got, loader))
	require.Equal(t, 2, got, "expired entry must reload")
}

func TestInvalidateUserChangesKey(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "perms", 7, nil, nil)
	require.NoError(t, err)
	require.NoError(t, cache.InvalidateUser(ctx, 7))
	after, err := cache.BuildKey(ctx, "perms", 7, nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, before, after)

	// An unrelated user's keys are untouched.
	otherBefore, err := cache.BuildKey(ctx, "perms", 8, nil, nil)
	require.NoError(t, err)
	require.NoError(t, cache.InvalidateUser(ctx, 7))
	otherAfter, err := cache.BuildKey(ctx, "perms", 8, nil, nil)
	require.NoError(t, err)
	require.Equal(t, otherBefore, otherAfter)
}

func TestInvalidateAllChangesEveryKey(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	a, err := cache.BuildKey(ctx, "perms", 7, nil, nil)
	require.NoError(t, err)
	b, err := cache.BuildKey(ctx, "level", 8, nil, nil)
	require.NoError(t, err)

	require.NoError(t, cache.InvalidateAll(ctx))

	a2, err := cache.BuildKey(ctx, "perms", 7, nil, nil)
	require.NoError(t, err)
	b2, err := cache.BuildKey(ctx, "level", 8, nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, a, a2)
	require.NotEqual(t, b, b2)
}

func TestKeyIncludesScopeTuple(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	company := int64(3)
	projectA := int64(11)
	projectB := int64(12)

	ka, err := cache.BuildKey(ctx, "perms", 7, &company, &projectA)
	require.NoError(t, err)
	kb, err := cache.BuildKey(ctx, "perms", 7, &company, &projectB)
	require.NoError(t, err)
	require.NotEqual(t, ka, kb, "different projects must never share an entry")
}

func TestNilClientFallsThrough(t *testing.T) {
	cache := New(nil, time.Minute, time.Minute, time.Minute)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "perms", 7, nil, nil)
	require.NoError(t, err)

	calls := 0
	var got []string
	loader := func(context.Context) (any, error) {
		calls++
		return []string{"units.view"}, nil
	}
	require.NoError(t, cache.Fetch(ctx, TierShort, key, &got, loader))
	require.NoError(t, cache.Fetch(ctx, TierShort, key, &got, loader))
	require.Equal(t, 2, calls)
	require.Equal(t, []string{"units.view"}, got)
}

func TestFetchDegradesWhenRedisUnavailable(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	mr.Close()

	key, err := cache.BuildKey(ctx, "perms", 7, nil, nil)
	require.NoError(t, err)
	require.Empty(t, key, "version counters unreachable, key must bypass the cache")

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return []string{"billing.view"}, nil
	}

	var got []string
	require.NoError(t, cache.Fetch(ctx, TierShort, key, &got, loader))
	require.Equal(t, []string{"billing.view"}, got)

	got = nil
	require.NoError(t, cache.Fetch(ctx, TierShort, key, &got, loader))
	require.Equal(t, []string{"billing.view"}, got)
	require.Equal(t, 2, calls, "every fetch must hit the loader while the cache is down")
}

func TestFetchDegradesWhenReadFails(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "perms", 7, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, key)
	mr.Close()

	var got []string
	err = cache.Fetch(ctx, TierShort, key, &got, func(context.Context) (any, error) {
		return []string{"parcels.view"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"parcels.view"}, got)
}
