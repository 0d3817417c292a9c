package devotp

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "devotp:"

// RedisStore is a Store backed by Redis so several server replicas share dev codes.
// Entries expire through the key TTL.
type RedisStore struct {
	client *redis.Client
	nowF   func() time.Time
}

// NewRedisStore returns a RedisStore using client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, nowF: time.Now}
}

// Put stores otp under the email key with a TTL reaching expiresAt. A past expiresAt deletes the key.
func (s *RedisStore) Put(ctx context.Context, email, otp string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.nowF())
	if ttl <= 0 {
		return s.client.Del(ctx, redisKeyPrefix+email).Err()
	}
	return s.client.Set(ctx, redisKeyPrefix+email, otp, ttl).Err()
}

// Get returns the otp for email if the key still exists.
func (s *RedisStore) Get(ctx context.Context, email string) (string, bool, error) {
	v, err := s.client.Get(ctx, redisKeyPrefix+email).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
