package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
	Stats() map[string]interface{}
	Health(ctx context.Context) error
	Close() error
}

// MultiLevelCache reads through an in-process L1 to redis. L1 entries live
// for a short fixed TTL; other replicas see an invalidation once their own L1
// entry expires. A nil L2 makes it a memory-only cache.
type MultiLevelCache struct {
	l1     *MemoryCache
	l2     *RedisCache
	logger *zap.Logger
}

func NewMultiLevelCache(l1 *MemoryCache, l2 *RedisCache) *MultiLevelCache {
	if l1 == nil {
		l1 = NewMemoryCache(DefaultMemoryCacheSize, DefaultMemoryCacheTTL)
	}
	return &MultiLevelCache{l1: l1, l2: l2, logger: zap.NewNop()}
}

func (c *MultiLevelCache) WithLogger(logger *zap.Logger) *MultiLevelCache {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.l1.Set(key, value); err != nil {
		return err
	}

	if c.l2 != nil {
		return c.l2.Set(ctx, key, value, ttl)
	}
	return nil
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := c.l1.Get(key, dest); err == nil {
		return nil
	}

	if c.l2 == nil {
		return ErrCacheMiss
	}

	if err := c.l2.Get(ctx, key, dest); err != nil {
		return err
	}
	// The value came from redis; an L1 fill failure only costs the next read.
	if err := c.l1.Set(key, dest); err != nil {
		c.logger.Debug("l1 fill failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// Delete always clears L1 even when redis is unreachable.
func (c *MultiLevelCache) Delete(ctx context.Context, key string) error {
	c.l1.Delete(key)

	if c.l2 != nil {
		return c.l2.Delete(ctx, key)
	}
	return nil
}

func (c *MultiLevelCache) DeletePattern(ctx context.Context, pattern string) error {
	c.l1.DeletePattern(pattern)

	if c.l2 != nil {
		return c.l2.DeletePattern(ctx, pattern)
	}
	return nil
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1": c.l1.Stats(),
	}

	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}

	return stats
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	if err := c.l2.Health(ctx); err != nil {
		return errors.Join(ErrCacheDown, err)
	}
	return nil
}

func (c *MultiLevelCache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
