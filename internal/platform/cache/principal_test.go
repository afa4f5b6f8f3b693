package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*PrincipalCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPrincipalCache(client), mr
}

func TestPrincipalCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	orgID := int64(3)

	snap := PrincipalSnapshot{
		ID:           11,
		OrgID:        &orgID,
		Email:        "agent@acme.test",
		Permissions:  []string{"applications.view", "applications.create"},
		Roles:        []RoleSnapshot{{Name: "agent", Level: 40, OrgID: &orgID}},
		HighestLevel: 40,
	}
	require.NoError(t, c.Put(ctx, 11, snap, time.Minute))

	got, ok := c.Get(ctx, 11)
	require.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestPrincipalCacheMissAndDrop(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, 99)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, 99, PrincipalSnapshot{ID: 99}, time.Minute))
	require.NoError(t, c.Drop(ctx, 99))

	_, ok = c.Get(ctx, 99)
	assert.False(t, ok)
}

func TestPrincipalCacheExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 5, PrincipalSnapshot{ID: 5}, time.Second))
	mr.FastForward(2 * time.Second)

	_, ok := c.Get(ctx, 5)
	assert.False(t, ok)
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *PrincipalCache
	ctx := context.Background()
	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)
	assert.NoError(t, c.Put(ctx, 1, PrincipalSnapshot{}, time.Minute))
	assert.NoError(t, c.Drop(ctx, 1))
}
