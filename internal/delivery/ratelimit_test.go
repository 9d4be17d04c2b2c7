package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiterSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)

	limiter, err := NewRedisLimiter("redis://" + mr.Addr())
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "sub-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "delivery %d should be allowed", i+1)
	}

	ok, err := limiter.Allow(ctx, "sub-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "fourth delivery in window should be deferred")
}

func TestRedisLimiterKeysAreIndependent(t *testing.T) {
	mr := miniredis.RunT(t)

	limiter, err := NewRedisLimiter("redis://" + mr.Addr())
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "sub-a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Allow(ctx, "sub-a", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "sub-b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a different subscription has its own window")
}

func TestRedisLimiterWindowExpiry(t *testing.T) {
	mr := miniredis.RunT(t)

	limiter, err := NewRedisLimiter("redis://" + mr.Addr())
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "sub-1", 1, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Allow(ctx, "sub-1", 1, 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(60 * time.Millisecond)

	ok, err = limiter.Allow(ctx, "sub-1", 1, 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "window rolled over, delivery allowed again")
}

func TestLocalLimiter(t *testing.T) {
	limiter := NewLocalLimiter()
	defer limiter.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "sub-1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := limiter.Allow(ctx, "sub-1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "sub-2", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
