package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
)

const (
	opTimeout   = 3 * time.Second
	scanTimeout = 10 * time.Second
	scanCount   = 100
)

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Breaker      *CircuitBreakerConfig
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisCache stores JSON values in redis behind a circuit breaker. When the
// breaker is open every call fails fast with ErrCacheDown.
type RedisCache struct {
	client  *redis.Client
	breaker *CircuitBreaker
	metrics *CacheMetrics
	logger  *zap.Logger
}

func NewRedisCache(config *CacheConfig, logger *zap.Logger) *RedisCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	breaker := NewCircuitBreaker(config.Breaker)
	breaker.OnStateChange(func(from, to CircuitBreakerState) {
		logger.Warn("redis circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})

	return &RedisCache{
		client:  rdb,
		breaker: breaker,
		metrics: NewCacheMetrics("redis"),
		logger:  logger,
	}
}

func (r *RedisCache) do(fn func() error) error {
	err := r.breaker.Execute(fn, func(err error) bool { return errors.Is(err, ErrCacheMiss) })
	if errors.Is(err, ErrCircuitBreakerOpen) {
		r.metrics.RecordError()
		return ErrCacheDown
	}
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		r.metrics.RecordError()
	}
	return err
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return r.do(func() error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		if err := r.client.Set(ctx, key, data, expiration).Err(); err != nil {
			return fmt.Errorf("failed to set cache: %w", err)
		}
		r.metrics.RecordSet()
		return nil
	})
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	err := r.do(func() error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		raw, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("failed to get from cache: %w", err)
		}
		data = raw
		return nil
	})
	if errors.Is(err, ErrCacheMiss) {
		r.metrics.RecordMiss()
		return err
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		r.metrics.RecordError()
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	r.metrics.RecordHit()
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.do(func() error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
		r.metrics.RecordDelete()
		return nil
	})
}

// DeletePattern removes every key matching a glob pattern. It walks the
// keyspace with SCAN so a large keyspace does not block redis.
func (r *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	return r.do(func() error {
		ctx, cancel := context.WithTimeout(ctx, scanTimeout)
		defer cancel()

		iter := r.client.Scan(ctx, 0, pattern, scanCount).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan keys for pattern %s: %w", pattern, err)
		}

		if len(keys) == 0 {
			return nil
		}
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys for pattern %s: %w", pattern, err)
		}
		r.metrics.RecordDelete()
		return nil
	})
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := r.do(func() error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		n, err := r.client.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		found = n > 0
		return nil
	})
	return found, err
}

// Health pings redis directly so readiness reflects the server even while the
// breaker is open.
func (r *RedisCache) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Stats() map[string]interface{} {
	poolStats := r.client.PoolStats()

	return map[string]interface{}{
		"operations":    r.metrics.Snapshot(),
		"breaker":       r.breaker.GetStats(),
		"pool_hits":     poolStats.Hits,
		"pool_misses":   poolStats.Misses,
		"pool_timeouts": poolStats.Timeouts,
		"pool_total":    poolStats.TotalConns,
		"pool_idle":     poolStats.IdleConns,
		"pool_stale":    poolStats.StaleConns,
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
