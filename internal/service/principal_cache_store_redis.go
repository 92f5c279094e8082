package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisPrincipalCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisPrincipalCacheStore(client redis.UniversalClient, prefix string) *RedisPrincipalCacheStore {
	if prefix == "" {
		prefix = "docshare_principal"
	}
	return &RedisPrincipalCacheStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisPrincipalCacheStore) Get(ctx context.Context, userID uint, sessionTokenID string) (CachedPrincipal, bool, error) {
	if s.client == nil {
		return CachedPrincipal{}, false, nil
	}
	key, err := s.dataKey(ctx, userID, sessionTokenID)
	if err != nil {
		return CachedPrincipal{}, false, err
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return CachedPrincipal{}, false, nil
	}
	if err != nil {
		return CachedPrincipal{}, false, err
	}
	var p CachedPrincipal
	if err := json.Unmarshal(raw, &p); err != nil {
		return CachedPrincipal{}, false, err
	}
	return p, true, nil
}

func (s *RedisPrincipalCacheStore) Set(ctx context.Context, userID uint, sessionTokenID string, p CachedPrincipal, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	key, err := s.dataKey(ctx, userID, sessionTokenID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, payload, ttl).Err()
}

func (s *RedisPrincipalCacheStore) InvalidateUser(ctx context.Context, userID uint) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, s.userEpochKey(userID)).Err()
}

func (s *RedisPrincipalCacheStore) InvalidateAll(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, s.globalEpochKey()).Err()
}

func (s *RedisPrincipalCacheStore) dataKey(ctx context.Context, userID uint, sessionTokenID string) (string, error) {
	pipe := s.client.Pipeline()
	globalEpochCmd := pipe.Get(ctx, s.globalEpochKey())
	userEpochCmd := pipe.Get(ctx, s.userEpochKey(userID))
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return "", err
	}
	globalEpoch, err := parseEpoch(globalEpochCmd)
	if err != nil {
		return "", err
	}
	userEpoch, err := parseEpoch(userEpochCmd)
	if err != nil {
		return "", err
	}
	return s.prefix + ":" + buildPrincipalCacheKey(globalEpoch, userEpoch, userID, sessionTokenID), nil
}

func parseEpoch(cmd *redis.StringCmd) (uint64, error) {
	v, err := cmd.Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func (s *RedisPrincipalCacheStore) globalEpochKey() string {
	return s.prefix + ":epoch:global"
}

func (s *RedisPrincipalCacheStore) userEpochKey(userID uint) string {
	return fmt.Sprintf("%s:epoch:user:%d", s.prefix, userID)
}
