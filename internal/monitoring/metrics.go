package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskgate"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by service, method, route and status code.",
		},
		[]string{"service", "method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by service and route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "route"},
	)

	// GateDecisionsTotal counts auth gate outcomes: allow | redirect | reject.
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Auth gate decisions by outcome.",
		},
		[]string{"outcome"},
	)

	// ProxyRequestsTotal counts forwarded requests by upstream and outcome:
	// ok | timeout | error | stream_error.
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Proxied requests by upstream and outcome.",
		},
		[]string{"upstream", "outcome"},
	)

	ProxyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "duration_seconds",
			Help:      "Time spent relaying a request to the upstream.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)
)

var startTime = time.Now()

func ObserveProxy(upstream, outcome string, elapsed time.Duration) {
	ProxyRequestsTotal.WithLabelValues(upstream, outcome).Inc()
	ProxyDuration.WithLabelValues(upstream).Observe(elapsed.Seconds())
}

func ObserveGateDecision(outcome string) {
	GateDecisionsTotal.WithLabelValues(outcome).Inc()
}

func MetricsMiddleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(service, c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(service, route).Observe(time.Since(start).Seconds())
	}
}

func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

type HealthCheck struct {
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	LastRun time.Time `json:"last_run"`
}

type HealthCheckFunc func(ctx context.Context) error

// InfoFunc reports component statistics shown next to the readiness checks.
type InfoFunc func() map[string]interface{}

// HealthChecker runs registered dependency checks on demand.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheckFunc
	info    map[string]InfoFunc
	timeout time.Duration
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]HealthCheckFunc),
		info:    make(map[string]InfoFunc),
		timeout: 5 * time.Second,
	}
}

func (h *HealthChecker) Register(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *HealthChecker) RegisterInfo(name string, info InfoFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.info[name] = info
}

// Info collects every registered InfoFunc. Nil when none is registered.
func (h *HealthChecker) Info() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.info) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(h.info))
	for name, info := range h.info {
		out[name] = info()
	}
	return out
}

func (h *HealthChecker) Run(ctx context.Context) map[string]HealthCheck {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make(map[string]HealthCheckFunc, len(names))
	for _, name := range names {
		checks[name] = h.checks[name]
	}
	h.mu.RUnlock()

	results := make(map[string]HealthCheck, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		result := HealthCheck{Name: name, Status: "healthy", LastRun: time.Now()}
		if err := checks[name](checkCtx); err != nil {
			result.Status = "unhealthy"
			result.Message = err.Error()
		}
		cancel()
		results[name] = result
	}
	return results
}

func healthy(checks map[string]HealthCheck) bool {
	for _, check := range checks {
		if check.Status != "healthy" {
			return false
		}
	}
	return true
}

func (h *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := h.Run(c.Request.Context())

		body := gin.H{
			"status":    "ready",
			"timestamp": time.Now(),
			"checks":    checks,
		}
		if info := h.Info(); info != nil {
			body["info"] = info
		}

		if healthy(checks) {
			c.JSON(http.StatusOK, body)
			return
		}
		body["status"] = "not ready"
		c.JSON(http.StatusServiceUnavailable, body)
	}
}

func LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "alive",
			"timestamp":  time.Now(),
			"uptime":     time.Since(startTime).String(),
			"goroutines": runtime.NumGoroutine(),
		})
	}
}
