package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-gateway/internal/config"
	"task-gateway/internal/logging"
	"task-gateway/internal/server"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log, cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Warn("gateway checks credential presence only; signature and expiry are verified by the upstream",
		zap.Bool("upstream_verifies_credentials", cfg.Gateway.UpstreamVerifiesCredentials),
	)
	if !cfg.Gateway.UpstreamVerifiesCredentials {
		logger.Error("upstream credential verification is disabled; forged credentials reach page routes")
	}

	router, err := server.NewGatewayRouter(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build gateway", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.GetGatewayAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("gateway listening",
			zap.String("addr", srv.Addr),
			zap.String("upstream", cfg.Gateway.UpstreamURL),
			zap.Strings("protected_prefixes", cfg.Gateway.ProtectedPrefixes),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("gateway stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("gateway forced to shutdown", zap.Error(err))
	}
	logger.Info("gateway exited")
}
