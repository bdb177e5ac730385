package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "formvibe:ratelimit:"

// RedisLimiter implements a sliding-window counter on a Redis sorted set,
// one member per observed event scored by its timestamp.
type RedisLimiter struct {
	client      *goredis.Client
	maxRequests int64
	window      time.Duration
}

// NewRedisLimiter creates a RedisLimiter allowing maxRequests per window.
func NewRedisLimiter(client *goredis.Client, maxRequests int, window time.Duration) *RedisLimiter {
	if maxRequests <= 0 {
		maxRequests = 10
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &RedisLimiter{
		client:      client,
		maxRequests: int64(maxRequests),
		window:      window,
	}
}

// Allow records one event for the key and reports whether it stays within the
// window budget. Errors indicate Redis is unreachable, not a limit decision.
func (limiter *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-limiter.window)
	redisKey := redisKeyPrefix + key

	pipeline := limiter.client.TxPipeline()
	pipeline.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCommand := pipeline.ZCard(ctx, redisKey)
	pipeline.ZAdd(ctx, redisKey, goredis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipeline.Expire(ctx, redisKey, limiter.window)

	if _, execErr := pipeline.Exec(ctx); execErr != nil {
		return false, fmt.Errorf("ratelimit: redis exec: %w", execErr)
	}

	return countCommand.Val() < limiter.maxRequests, nil
}
