package store

import (
	"context"
	"time"

	"coachsync/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient 创建Redis客户端
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisRunLock SET NX 互斥锁，用于跨进程串行化 reconciliation run。
// TTL 兜底：持锁进程崩溃后锁自动过期。
type RedisRunLock struct {
	c *redis.Client
}

func NewRedisRunLock(c *redis.Client) *RedisRunLock { return &RedisRunLock{c: c} }

func (l *RedisRunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.c.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (l *RedisRunLock) Release(ctx context.Context, key string) error {
	return l.c.Del(ctx, key).Err()
}
