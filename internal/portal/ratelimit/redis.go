package ratelimit

import (
	"context"
	"fmt"
	"time"

	pkgredis "github.com/shepardc348-cloud/Freshwater-Vault/pkg/redis"
)

const keyPrefix = "ratelimit:"

// RedisLimiter keeps fixed-window counters in Redis.
type RedisLimiter struct {
	client *pkgredis.Client
	limit  int
	period time.Duration
}

func NewRedisLimiter(client *pkgredis.Client, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, period: period}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, left, err := l.client.IncrWindow(ctx, keyPrefix+key, l.period)
	if err != nil {
		return Decision{}, fmt.Errorf("counting request for %s: %w", key, err)
	}
	return decide(int(count), l.limit, left), nil
}
