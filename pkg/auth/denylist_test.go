package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisDenylist(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	now := time.Now()

	d := NewRedisDenylist(client, "")
	d.now = func() time.Time { return now }

	revoked, err := d.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, d.Revoke(ctx, "abc", now.Add(10*time.Minute)))

	revoked, err = d.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.True(t, mr.Exists("tablekeep:revoked:abc"))

	mr.FastForward(11 * time.Minute)

	revoked, err = d.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisDenylistSkipsExpiredTokens(t *testing.T) {
	mr, client := setupRedis(t)
	now := time.Now()

	d := NewRedisDenylist(client, "test:")
	d.now = func() time.Time { return now }

	require.NoError(t, d.Revoke(context.Background(), "old", now.Add(-time.Minute)))
	assert.False(t, mr.Exists("test:old"))
}

func TestRedisDenylistUnavailable(t *testing.T) {
	mr, client := setupRedis(t)
	mr.Close()

	d := NewRedisDenylist(client, "")
	_, err := d.IsRevoked(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to check token revocation")
}

func TestMemoryDenylist(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDenylist(8, time.Hour)

	require.NoError(t, d.Revoke(ctx, "live", time.Now().Add(time.Minute)))
	require.NoError(t, d.Revoke(ctx, "stale", time.Now().Add(-time.Minute)))

	revoked, err := d.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = d.IsRevoked(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, revoked)
}
