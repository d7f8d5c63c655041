package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client backed by miniredis, an in-memory
// server that needs no external process.
func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Ping(context.Background()).Err())
	return NewRedis(client), mr
}

func TestLockOrderIsExclusive(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockOrder(ctx, "order-1", "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)

	// A second holder cannot take the same lock.
	ok, err = r.LockOrder(ctx, "order-1", "owner-b")
	require.NoError(t, err)
	assert.False(t, ok)

	// A different order is unaffected.
	ok, err = r.LockOrder(ctx, "order-2", "owner-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlockOrderRequiresOwner(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockOrder(ctx, "order-1", "owner-a")
	require.NoError(t, err)
	require.True(t, ok)

	// The wrong owner's unlock is a silent no-op; the lock stays held.
	require.NoError(t, r.UnlockOrder(ctx, "order-1", "owner-b"))
	locked, err := r.IsLocked(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, r.UnlockOrder(ctx, "order-1", "owner-a"))
	locked, err = r.IsLocked(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestUnlockReleasedLockIsNoOp(t *testing.T) {
	r, _ := setupTestRedis(t)
	assert.NoError(t, r.UnlockOrder(context.Background(), "order-never-locked", "owner-a"))
}

func TestLockExpiresAfterTTL(t *testing.T) {
	t.Setenv("ORDER_LOCK_TTL_SECONDS", "1")
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := r.LockOrder(ctx, "order-1", "owner-a")
	require.NoError(t, err)
	require.True(t, ok)

	// The TTL is the safety net against a crashed holder.
	mr.FastForward(2 * time.Second)

	ok, err = r.LockOrder(ctx, "order-1", "owner-b")
	require.NoError(t, err)
	assert.True(t, ok, "an expired lock must be takeable again")
}

func TestLockTTLFallsBackOnBadEnv(t *testing.T) {
	t.Setenv("ORDER_LOCK_TTL_SECONDS", "not-a-number")
	r, _ := setupTestRedis(t)

	assert.Equal(t, 2*time.Minute, r.getOrderLockDuration())
}
