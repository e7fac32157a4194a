package cache

import (
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultMemoryCacheSize = 1024
	DefaultMemoryCacheTTL  = 30 * time.Second
)

// MemoryCache is the in-process L1. Values are kept as JSON so callers never
// share a mutable value through the cache.
type MemoryCache struct {
	lru     *expirable.LRU[string, []byte]
	metrics *CacheMetrics
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = DefaultMemoryCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultMemoryCacheTTL
	}
	return &MemoryCache{
		lru:     expirable.NewLRU[string, []byte](size, nil, ttl),
		metrics: NewCacheMetrics("memory"),
	}
}

func (m *MemoryCache) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	m.lru.Add(key, data)
	m.metrics.RecordSet()
	return nil
}

func (m *MemoryCache) Get(key string, dest interface{}) error {
	data, ok := m.lru.Get(key)
	if !ok {
		m.metrics.RecordMiss()
		return ErrCacheMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		m.metrics.RecordError()
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	m.metrics.RecordHit()
	return nil
}

func (m *MemoryCache) Delete(key string) {
	if m.lru.Remove(key) {
		m.metrics.RecordDelete()
	}
}

// DeletePattern accepts the same glob syntax as redis for the patterns used
// here (`*`, `?`, character classes).
func (m *MemoryCache) DeletePattern(pattern string) {
	for _, key := range m.lru.Keys() {
		if ok, _ := path.Match(pattern, key); ok {
			m.Delete(key)
		}
	}
}

func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

func (m *MemoryCache) Stats() map[string]interface{} {
	stats := m.metrics.Snapshot()
	stats["entries"] = m.lru.Len()
	return stats
}
