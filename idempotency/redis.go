package idempotency

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const Header = "Idempotency-Key"

const pending = "pending"

// Key reads the client's idempotency key from the request.
func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// RedisKeys stores one value per key: "pending" while the first request runs,
// then the id of the order it created.
type RedisKeys struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisKeys(rdb *redis.Client, ttl time.Duration) *RedisKeys {
	return &RedisKeys{rdb: rdb, ttl: ttl}
}

func redisKey(key string) string {
	return "idempotency:" + key
}

func (k *RedisKeys) Reserve(ctx context.Context, key string) (int64, bool, error) {
	ok, err := k.rdb.SetNX(ctx, redisKey(key), pending, k.ttl).Result()
	if err != nil {
		return 0, false, err
	}
	if ok {
		return 0, true, nil
	}
	val, err := k.rdb.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		ok, err = k.rdb.SetNX(ctx, redisKey(key), pending, k.ttl).Result()
		return 0, ok, err
	}
	if err != nil {
		return 0, false, err
	}
	if val == pending {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency value %q: %w", val, err)
	}
	return id, false, nil
}

func (k *RedisKeys) Complete(ctx context.Context, key string, orderID int64) error {
	return k.rdb.Set(ctx, redisKey(key), strconv.FormatInt(orderID, 10), k.ttl).Err()
}

func (k *RedisKeys) Release(ctx context.Context, key string) error {
	return k.rdb.Del(ctx, redisKey(key)).Err()
}
