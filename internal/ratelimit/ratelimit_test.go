package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/atlasbank/swift-portal/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAdapter(t *testing.T) (redis.RedisAdapter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	return adapter, mr
}

func TestLimiter_AllowsUpToBudget(t *testing.T) {
	adapter, _ := setupAdapter(t)
	limiter := NewLimiter(adapter, "ratelimit:auth:", 20, time.Minute)

	for i := 0; i < 20; i++ {
		require.NoError(t, limiter.Allow("203.0.113.9"))
	}
	assert.ErrorIs(t, limiter.Allow("203.0.113.9"), ErrLimitExceeded)
}

func TestLimiter_BudgetIsPerKey(t *testing.T) {
	adapter, _ := setupAdapter(t)
	limiter := NewLimiter(adapter, "ratelimit:auth:", 3, time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow("203.0.113.9"))
	}
	require.ErrorIs(t, limiter.Allow("203.0.113.9"), ErrLimitExceeded)

	// A different address has its own counter.
	assert.NoError(t, limiter.Allow("198.51.100.4"))
}

func TestLimiter_WindowResets(t *testing.T) {
	adapter, mr := setupAdapter(t)
	limiter := NewLimiter(adapter, "ratelimit:auth:", 2, time.Minute)

	require.NoError(t, limiter.Allow("203.0.113.9"))
	require.NoError(t, limiter.Allow("203.0.113.9"))
	require.ErrorIs(t, limiter.Allow("203.0.113.9"), ErrLimitExceeded)

	mr.FastForward(61 * time.Second)

	assert.NoError(t, limiter.Allow("203.0.113.9"))
}

func TestLockout_LocksAtThreshold(t *testing.T) {
	adapter, _ := setupAdapter(t)
	lockout := NewLockout(adapter, "lockout:", 5, 15*time.Minute)

	for i := 1; i <= 4; i++ {
		count, err := lockout.RecordFailure("customer:alice.w")
		require.NoError(t, err)
		assert.Equal(t, int64(i), count)

		locked, err := lockout.Locked("customer:alice.w")
		require.NoError(t, err)
		assert.False(t, locked)
	}

	count, err := lockout.RecordFailure("customer:alice.w")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	locked, err := lockout.Locked("customer:alice.w")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestLockout_ResetClearsCounter(t *testing.T) {
	adapter, _ := setupAdapter(t)
	lockout := NewLockout(adapter, "lockout:", 5, 15*time.Minute)

	for i := 0; i < 5; i++ {
		_, err := lockout.RecordFailure("customer:alice.w")
		require.NoError(t, err)
	}
	locked, err := lockout.Locked("customer:alice.w")
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, lockout.Reset("customer:alice.w"))

	locked, err = lockout.Locked("customer:alice.w")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockout_WindowRolls(t *testing.T) {
	adapter, mr := setupAdapter(t)
	lockout := NewLockout(adapter, "lockout:", 5, 15*time.Minute)

	for i := 0; i < 5; i++ {
		_, err := lockout.RecordFailure("customer:alice.w")
		require.NoError(t, err)
	}

	// Each failure re-arms the TTL. Ten minutes in, another failure
	// pushes expiry out to fifteen minutes from now.
	mr.FastForward(10 * time.Minute)
	_, err := lockout.RecordFailure("customer:alice.w")
	require.NoError(t, err)

	mr.FastForward(10 * time.Minute)
	locked, err := lockout.Locked("customer:alice.w")
	require.NoError(t, err)
	assert.True(t, locked)

	mr.FastForward(6 * time.Minute)
	locked, err = lockout.Locked("customer:alice.w")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockout_UnknownIdentityIsNotLocked(t *testing.T) {
	adapter, _ := setupAdapter(t)
	lockout := NewLockout(adapter, "lockout:", 5, 15*time.Minute)

	locked, err := lockout.Locked("customer:never.failed")
	require.NoError(t, err)
	assert.False(t, locked)
}
