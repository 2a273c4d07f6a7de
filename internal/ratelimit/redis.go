package ratelimit

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is the distributed strategy: an atomic INCR plus a
// set-if-absent EXPIRE against a shared counter, so the count is consistent
// across horizontally scaled instances. EXPIRE NX anchors the window to the
// first request rather than sliding it on every hit.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	prefix string
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedis creates a distributed limiter. prefix namespaces the counter keys
// (e.g. "rl").
func NewRedis(client *redis.Client, cfg Config, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{client: client, cfg: cfg.withDefaults(), prefix: prefix}
}

// Admit increments the shared counter and rejects once the window total
// exceeds the limit. Returns an error when the store is unreachable; the
// caller decides the fallback policy.
func (rl *RedisLimiter) Admit(ctx context.Context, key string) (Decision, error) {
	k := rl.prefix + ":" + key

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, rl.cfg.Window)
	ttl := pipe.TTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	count := incr.Val()
	if count > int64(rl.cfg.Limit) {
		retry := rl.cfg.Window
		if d := ttl.Val(); d > 0 {
			retry = d
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}
	return Decision{Allowed: true, Remaining: rl.cfg.Limit - int(count)}, nil
}
