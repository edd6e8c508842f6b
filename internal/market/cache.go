package market

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cache 以 (ticker, date, kind) 为键缓存已取回的数据，带显式过期时间，
// 避免同一交易日内重复评估同一标的时反复访问供应商。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// CacheKey 统一键格式：kind:TICKER:YYYY-MM-DD。
func CacheKey(kind, ticker string, date time.Time) string {
	return fmt.Sprintf("%s:%s:%s", kind, ticker, date.Format("2006-01-02"))
}

type memoryEntry struct {
	val       []byte
	expiresAt time.Time
}

// MemoryCache 进程内缓存，Redis 未配置时的缺省实现。
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	nowFn   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		nowFn:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	ent, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !ent.expiresAt.IsZero() && c.nowFn().After(ent.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return ent.val, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	ent := memoryEntry{val: val}
	if ttl > 0 {
		ent.expiresAt = c.nowFn().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = ent
	c.mu.Unlock()
	return nil
}
