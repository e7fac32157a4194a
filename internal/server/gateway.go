// Package server assembles the gin engines for the gateway and the task API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"task-gateway/internal/config"
	"task-gateway/internal/gateway"
	"task-gateway/internal/middleware"
	"task-gateway/internal/monitoring"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewGatewayRouter wires request id, logging, recovery, metrics and rate
// limiting ahead of the auth gate. Health and metrics routes are registered
// before the gate and never need a credential.
func NewGatewayRouter(cfg *config.Config, logger *zap.Logger) (*gin.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gw := cfg.Gateway

	extractor := gateway.NewCredentialExtractor(gw.CookieNames)
	classifier := gateway.NewPathClassifier(gw.ProtectedPrefixes, gw.PublicPrefixes)
	gate := gateway.NewAuthGate(classifier, extractor, gw.LoginPath)

	api, err := gateway.NewProxyForwarder(gateway.ForwarderConfig{
		Name:        "api",
		UpstreamURL: gw.UpstreamURL,
		Prefix:      gw.ProxyPrefix,
		Timeout:     gw.UpstreamTimeout,
	}, extractor, logger)
	if err != nil {
		return nil, fmt.Errorf("api upstream: %w", err)
	}

	var frontend *gateway.ProxyForwarder
	if gw.FrontendURL != "" {
		frontend, err = gateway.NewProxyForwarder(gateway.ForwarderConfig{
			Name:        "frontend",
			UpstreamURL: gw.FrontendURL,
			Timeout:     gw.UpstreamTimeout,
		}, extractor, logger)
		if err != nil {
			return nil, fmt.Errorf("frontend upstream: %w", err)
		}
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger.Named("http")),
		middleware.RecoveryWithLog(),
		monitoring.MetricsMiddleware("gateway"),
	)
	if cfg.RateLimit.Enabled {
		router.Use(middleware.NewRateLimiter(cfg.RateLimit).Middleware())
	}

	health := monitoring.NewHealthChecker()
	health.Register("upstream", upstreamCheck(gw.UpstreamURL))
	router.GET("/healthz", monitoring.LivenessHandler())
	router.GET("/readyz", health.ReadinessHandler())
	router.GET("/metrics", monitoring.MetricsHandler())

	router.Use(middleware.Gate(gate, gw.APIPrefix))
	router.Any(api.Route(), api.Forward)

	if frontend != nil {
		router.NoRoute(frontend.Forward)
	} else {
		router.NoRoute(func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
		})
	}
	return router, nil
}

// upstreamCheck reports the task API as ready when it answers at all with a
// non-5xx status.
func upstreamCheck(upstreamURL string) monitoring.HealthCheckFunc {
	client := &http.Client{}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstreamURL+"/", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("upstream answered %d", resp.StatusCode)
		}
		return nil
	}
}
