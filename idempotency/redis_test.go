package idempotency

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisKeys, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisKeys(client, time.Hour), mr
}

func TestReserveFirstCallerWins(t *testing.T) {
	keys, mr := setupTestRedis(t)
	ctx := context.Background()

	id, ok, err := keys.Reserve(ctx, "checkout:1:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, id)

	id, ok, err = keys.Reserve(ctx, "checkout:1:abc")
	require.NoError(t, err)
	assert.False(t, ok, "in flight")
	assert.Zero(t, id)

	assert.Equal(t, time.Hour, mr.TTL("idempotency:checkout:1:abc"))
}

func TestCompleteReplaysOrderID(t *testing.T) {
	keys, mr := setupTestRedis(t)
	ctx := context.Background()

	_, _, err := keys.Reserve(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, keys.Complete(ctx, "k", 77))

	stored, err := mr.Get("idempotency:k")
	require.NoError(t, err)
	assert.Equal(t, "77", stored)

	id, ok, err := keys.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(77), id)
}

func TestReleaseFreesKey(t *testing.T) {
	keys, mr := setupTestRedis(t)
	ctx := context.Background()

	_, _, err := keys.Reserve(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, keys.Release(ctx, "k"))
	assert.False(t, mr.Exists("idempotency:k"))

	_, ok, err := keys.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeyExpires(t *testing.T) {
	keys, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, keys.Complete(ctx, "k", 5))
	mr.FastForward(2 * time.Hour)

	_, ok, err := keys.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCorruptValue(t *testing.T) {
	keys, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("idempotency:k", "garbage"))

	_, _, err := keys.Reserve(context.Background(), "k")
	assert.ErrorContains(t, err, "corrupt idempotency value")
}

func TestKeyHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/checkout", nil)
	r.Header.Set(Header, "  abc  ")
	assert.Equal(t, "abc", Key(r))
}
