package server

import (
	"net/http"
	"time"

	"task-gateway/internal/cache"
	"task-gateway/internal/config"
	"task-gateway/internal/database"
	"task-gateway/internal/handlers"
	"task-gateway/internal/middleware"
	"task-gateway/internal/monitoring"
	"task-gateway/internal/repositories"
	"task-gateway/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type APIDeps struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *database.DatabasePool
	// Cache is optional. Without it every read goes to the database.
	Cache cache.Cache
}

func NewAPIRouter(deps APIDeps) *gin.Engine {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var taskService services.TaskService = services.NewTaskService(repositories.NewTaskRepository(deps.DB.DB))
	if deps.Cache != nil {
		taskService = services.NewCachedTaskService(taskService, deps.Cache, cfg.Redis.TaskListTTL, logger)
	}

	tokens := services.NewTokenManager(cfg.Auth)
	authService := services.NewAuthService(repositories.NewUserRepository(deps.DB.DB), tokens, cfg.Auth.BCryptCost)
	authenticate := middleware.Authenticate(tokens)

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger.Named("http")),
		middleware.RecoveryWithLog(),
		monitoring.MetricsMiddleware("taskapi"),
		cors.New(corsConfig(cfg.CORS)),
	)

	health := monitoring.NewHealthChecker()
	health.Register("database", deps.DB.HealthContext)
	if deps.Cache != nil {
		health.Register("cache", deps.Cache.Health)
		health.RegisterInfo("cache", deps.Cache.Stats)
	}
	router.GET("/healthz", monitoring.LivenessHandler())
	router.GET("/readyz", health.ReadinessHandler())
	router.GET("/metrics", monitoring.MetricsHandler())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Todo API is running!"})
	})

	handlers.NewAuthHandler(authService).RegisterRoutes(router.Group("/api/auth"), authenticate)
	handlers.NewTaskHandler(taskService).RegisterRoutes(router.Group("/api/:user_id", authenticate))

	return router
}

// corsConfig allows credentials only for an explicit origin list; a wildcard
// origin is served without them.
func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = cfg.AllowedOrigins
	c.AllowCredentials = true
	return c
}
