package idempotency

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const pendingMarker = "-"

type RedisStore struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: "barapp:idem:"}
}

func (s *RedisStore) Key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Claim(ctx context.Context, key string) (bool, string, error) {
	ok, err := s.rdb.SetNX(ctx, s.Key(key), pendingMarker, s.ttl).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}

	val, err := s.rdb.Get(ctx, s.Key(key)).Result()
	if err == redis.Nil {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	if val == pendingMarker {
		val = ""
	}
	return false, val, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, resourceID string) error {
	if resourceID == "" {
		resourceID = pendingMarker
	}
	return s.rdb.Set(ctx, s.Key(key), resourceID, s.ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.Key(key)).Err()
}
