package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "storefront:profile:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(profileID, key string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, profileID, key)
}

func (s *RedisStore) Get(ctx context.Context, profileID, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, redisKey(profileID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	return val, nil
}

// Set stores value without expiry: local state outlives sessions.
func (s *RedisStore) Set(ctx context.Context, profileID, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKey(profileID, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, profileID, key string) error {
	if err := s.client.Del(ctx, redisKey(profileID, key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}

	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
