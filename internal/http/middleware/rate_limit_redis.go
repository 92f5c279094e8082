package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSlidingWindowLimiter keeps one sorted set of request timestamps per
// key so that every replica sees the same window. Denied requests are not
// counted against the window.
type RedisSlidingWindowLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisSlidingWindowLimiter(client redis.UniversalClient, prefix string) *RedisSlidingWindowLimiter {
	if prefix == "" {
		prefix = "docshare_rl"
	}
	return &RedisSlidingWindowLimiter{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisSlidingWindowLimiter) Allow(ctx context.Context, key string, policy WindowPolicy) (Decision, error) {
	policy = policy.normalized()
	now := l.now()
	redisKey := l.prefix + ":" + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	cutoff := now.Add(-policy.Window).UnixNano()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	count := int(card.Val())
	resetAt := now.Add(policy.Window)
	if zs := oldest.Val(); len(zs) > 0 {
		resetAt = time.Unix(0, int64(zs[0].Score)).Add(policy.Window)
	}
	if count > policy.Limit {
		if err := l.client.ZRem(ctx, redisKey, member).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit rollback: %w", err)
		}
		retry := resetAt.Sub(now)
		if retry <= 0 {
			retry = time.Second
		}
		return Decision{RetryAfter: retry, ResetAt: now.Add(retry)}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: policy.Limit - count,
		ResetAt:   resetAt,
	}, nil
}
