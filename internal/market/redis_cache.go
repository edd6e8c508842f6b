package market

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"quantgate/internal/logger"
)

// RedisCache 基于 Redis 的共享缓存，多实例部署时替代进程内缓存。
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 建立连接并做一次 Ping 探活，失败时返回 error 由调用方
// 决定是否降级到 MemoryCache。
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	logger.Infof("market cache: connected to redis at %s", addr)
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, val, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
