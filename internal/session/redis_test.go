package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisBackend instance
func setupTestRedis(t *testing.T) (*RedisBackend, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	backend := NewRedisBackend(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return backend, mr, cleanup
}

func TestRedisGet_Missing(t *testing.T) {
	backend, _, cleanup := setupTestRedis(t)
	defer cleanup()

	result, err := backend.Get(context.Background(), "sess1", "cart.items")
	assert.ErrorIs(t, err, ErrMissing)
	assert.Nil(t, result)
}

func TestRedisRemember_And_Get(t *testing.T) {
	backend, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	err := backend.Remember(ctx, "sess1", "cart.items", []byte(`[]`))
	require.NoError(t, err)

	got, err := backend.Get(ctx, "sess1", "cart.items")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	// Stored as a field of the session hash
	assert.Equal(t, `[]`, mr.HGet(sessionKey("sess1"), "cart.items"))
}

func TestRedisRemember_WithTTL(t *testing.T) {
	backend, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	err := backend.Remember(context.Background(), "sess2", "cart.coupons", []byte(`[1]`))
	require.NoError(t, err)

	ttl := mr.TTL(sessionKey("sess2"))
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl <= 20*time.Minute, "TTL should be base + max jitter")
}

func TestRedisSessionsAreIsolated(t *testing.T) {
	backend, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, backend.Remember(ctx, "a", "k", []byte("1")))

	_, err := backend.Get(ctx, "b", "k")
	assert.ErrorIs(t, err, ErrMissing)
}

func TestRedisForget(t *testing.T) {
	backend, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, backend.Remember(ctx, "sess3", "cart.coupons", []byte(`[3]`)))
	require.NoError(t, backend.Remember(ctx, "sess3", "cart.items", []byte(`[]`)))

	err := backend.Forget(ctx, "sess3", "cart.coupons")
	require.NoError(t, err)

	_, err = backend.Get(ctx, "sess3", "cart.coupons")
	assert.ErrorIs(t, err, ErrMissing)
	assert.Equal(t, `[]`, mr.HGet(sessionKey("sess3"), "cart.items"))
}

func TestRedisForget_NonExistentKey(t *testing.T) {
	backend, _, cleanup := setupTestRedis(t)
	defer cleanup()

	err := backend.Forget(context.Background(), "nobody", "nothing")
	assert.NoError(t, err)
}

func TestRedisGet_ServerDown(t *testing.T) {
	backend, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.Close()

	_, err := backend.Get(context.Background(), "sess", "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissing)
	assert.ErrorContains(t, err, "redis hget failed")
}

func TestSessionKey_Format(t *testing.T) {
	assert.Equal(t, "session:test123", sessionKey("test123"))
}

func TestForSession_BindsSessionID(t *testing.T) {
	backend, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := ForSession(backend, "bound")
	require.NoError(t, store.Remember(ctx, "k", []byte("v")))

	got, err := backend.Get(ctx, "bound", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	require.NoError(t, store.Forget(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMissing)
}
