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

	"task-gateway/internal/cache"
	"task-gateway/internal/config"
	"task-gateway/internal/database"
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

	pool, err := database.NewDatabasePool(database.PoolConfigFromConfig(cfg))
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Migrate(); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	deps := server.APIDeps{Config: cfg, Logger: logger, DB: pool}
	if cfg.Redis.Enabled {
		redisCache := cache.NewRedisCache(&cache.CacheConfig{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, logger.Named("redis"))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisCache.Health(ctx); err != nil {
			logger.Warn("redis unreachable at startup; serving from database until it recovers", zap.Error(err))
		}
		cancel()

		taskCache := cache.NewMultiLevelCache(nil, redisCache).WithLogger(logger.Named("cache"))
		defer taskCache.Close()
		deps.Cache = taskCache
	} else {
		logger.Info("redis disabled; task reads use the in-process cache only")
		deps.Cache = cache.NewMultiLevelCache(nil, nil).WithLogger(logger.Named("cache"))
	}

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      server.NewAPIRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("task api listening",
			zap.String("addr", srv.Addr),
			zap.String("db_driver", cfg.Database.Driver),
			zap.Bool("redis", cfg.Redis.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("task api stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down task api")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("task api forced to shutdown", zap.Error(err))
	}
	logger.Info("task api exited")
}
