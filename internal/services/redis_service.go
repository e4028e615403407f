package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService wraps the Redis connection used for cross-replica rate limits and locks
type RedisService struct {
	client *redis.Client
}

// NewRedisService connects to Redis and verifies the connection
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return &RedisService{client: client}, nil
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is healthy
func (r *RedisService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// AcquireLock takes lockKey for expiration if nobody holds it
func (r *RedisService) AcquireLock(ctx context.Context, lockKey, lockValue string, expiration time.Duration) (bool, error) {
	return r.client.SetNX(ctx, lockKey, lockValue, expiration).Result()
}

var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// ReleaseLock releases lockKey if it is still held with lockValue
func (r *RedisService) ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error) {
	result, err := releaseLockScript.Run(ctx, r.client, []string{lockKey}, lockValue).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// CheckRateLimit counts a hit in a fixed window and reports the remaining budget
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (remaining int64, exceeded bool, err error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, err
	}

	count := incr.Val()
	remaining = limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, count > limit, nil
}
