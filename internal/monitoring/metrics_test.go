package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_ReadyWhenAllChecksPass(t *testing.T) {
	gin.SetMode(gin.TestMode)

	checker := NewHealthChecker()
	checker.Register("database", func(ctx context.Context) error { return nil })

	router := gin.New()
	router.GET("/readyz", checker.ReadinessHandler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestHealthChecker_ReadinessIncludesInfo(t *testing.T) {
	gin.SetMode(gin.TestMode)

	checker := NewHealthChecker()
	checker.Register("cache", func(ctx context.Context) error { return nil })
	checker.RegisterInfo("cache", func() map[string]interface{} {
		return map[string]interface{}{"entries": 3}
	})

	router := gin.New()
	router.GET("/readyz", checker.ReadinessHandler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Info map[string]map[string]float64 `json:"info"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body.Info["cache"]["entries"])
}

func TestHealthChecker_NotReadyWhenACheckFails(t *testing.T) {
	gin.SetMode(gin.TestMode)

	checker := NewHealthChecker()
	checker.Register("database", func(ctx context.Context) error { return nil })
	checker.Register("redis", func(ctx context.Context) error { return errors.New("connection refused") })

	results := checker.Run(context.Background())
	assert.Equal(t, "healthy", results["database"].Status)
	assert.Equal(t, "unhealthy", results["redis"].Status)
	assert.Equal(t, "connection refused", results["redis"].Message)

	router := gin.New()
	router.GET("/readyz", checker.ReadinessHandler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsMiddleware_CountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(MetricsMiddleware("test"))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/metrics", MetricsHandler())

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("test", "GET", "/ping", "200"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("test", "GET", "/ping", "200"))
	assert.Equal(t, before+1, after)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "taskgate_http_requests_total"))
}

func TestLivenessHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/healthz", LivenessHandler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"alive"`)
}
