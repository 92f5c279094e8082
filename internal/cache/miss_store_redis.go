package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLoginMissStore shares unknown-email entries across instances. Each
// email is one key expiring on its own.
type RedisLoginMissStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisLoginMissStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLoginMissStore {
	if prefix == "" {
		prefix = "docshare_miss"
	}
	return &RedisLoginMissStore{client: client, prefix: prefix, ttl: unknownEmailTTL(ttl)}
}

func (s *RedisLoginMissStore) IsUnknown(ctx context.Context, email string) (bool, error) {
	key, ok := s.key(email)
	if !ok || s.client == nil {
		return false, nil
	}
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisLoginMissStore) MarkUnknown(ctx context.Context, email string) error {
	key, ok := s.key(email)
	if !ok || s.client == nil {
		return nil
	}
	return s.client.Set(ctx, key, "1", s.ttl).Err()
}

func (s *RedisLoginMissStore) Forget(ctx context.Context, email string) error {
	key, ok := s.key(email)
	if !ok || s.client == nil {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}

func (s *RedisLoginMissStore) key(email string) (string, bool) {
	digest, ok := emailDigest(email)
	if !ok {
		return "", false
	}
	return s.prefix + ":unknown_email:" + digest, true
}
