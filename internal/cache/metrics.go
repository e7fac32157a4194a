package cache

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "taskgate",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache operations by level and result.",
	},
	[]string{"level", "result"},
)

// CacheMetrics keeps in-process counters for Stats and mirrors them to
// prometheus under the given level label.
type CacheMetrics struct {
	level string

	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Errors  int64 `json:"errors"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`

	StartTime int64 `json:"start_time"`
}

func NewCacheMetrics(level string) *CacheMetrics {
	return &CacheMetrics{
		level:     level,
		StartTime: time.Now().Unix(),
	}
}

func (m *CacheMetrics) RecordHit() {
	atomic.AddInt64(&m.Hits, 1)
	cacheOperations.WithLabelValues(m.level, "hit").Inc()
}

func (m *CacheMetrics) RecordMiss() {
	atomic.AddInt64(&m.Misses, 1)
	cacheOperations.WithLabelValues(m.level, "miss").Inc()
}

func (m *CacheMetrics) RecordError() {
	atomic.AddInt64(&m.Errors, 1)
	cacheOperations.WithLabelValues(m.level, "error").Inc()
}

func (m *CacheMetrics) RecordSet() {
	atomic.AddInt64(&m.Sets, 1)
	cacheOperations.WithLabelValues(m.level, "set").Inc()
}

func (m *CacheMetrics) RecordDelete() {
	atomic.AddInt64(&m.Deletes, 1)
	cacheOperations.WithLabelValues(m.level, "delete").Inc()
}

func (m *CacheMetrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"hits":       atomic.LoadInt64(&m.Hits),
		"misses":     atomic.LoadInt64(&m.Misses),
		"errors":     atomic.LoadInt64(&m.Errors),
		"sets":       atomic.LoadInt64(&m.Sets),
		"deletes":    atomic.LoadInt64(&m.Deletes),
		"hit_rate":   m.HitRate(),
		"start_time": m.StartTime,
	}
}

func (m *CacheMetrics) HitRate() float64 {
	hits := atomic.LoadInt64(&m.Hits)
	misses := atomic.LoadInt64(&m.Misses)
	total := hits + misses

	if total == 0 {
		return 0.0
	}

	return float64(hits) / float64(total) * 100.0
}
