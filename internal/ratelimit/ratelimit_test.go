package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tradeboard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerExclusive(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "job:snapshot_week", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "job:snapshot_week", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "job:snapshot_week", "someone-else"))
	_, ok, err = locker.TryLock(ctx, "job:snapshot_week", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "release with a foreign token must not unlock")

	require.NoError(t, locker.Release(ctx, "job:snapshot_week", token))
	_, ok, err = locker.TryLock(ctx, "job:snapshot_week", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithLockSkipsWhenHeld(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "job:aggregate_recent", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ran := false
	err = locker.WithLock(ctx, "job:aggregate_recent", time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.False(t, ran)

	err = locker.WithLock(ctx, "job:other", time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	_, ok, err = locker.TryLock(ctx, "job:other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "WithLock releases on return")
}

func TestNewLockerNilClient(t *testing.T) {
	assert.Nil(t, NewLocker(nil))
}

func TestWriteLimiterBurst(t *testing.T) {
	_, client := newTestClient(t)
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, WriteRate: 0.001, WriteBurst: 2}}

	limiter, err := NewWriteLimiter(cfg, client)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.AllowUser(ctx, "checkin", 42)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := limiter.AllowUser(ctx, "checkin", 42)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	res, err = limiter.AllowUser(ctx, "checkin", 43)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestWriteLimiterDisabled(t *testing.T) {
	limiter, err := NewWriteLimiter(config.Config{}, nil)
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowUser(context.Background(), "boost", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	_, err = NewWriteLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true, WriteRate: 1, WriteBurst: 1}}, nil)
	assert.Error(t, err)
}
