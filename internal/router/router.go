package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dentara/clinic-api/internal/config"
	"github.com/dentara/clinic-api/internal/handler"
	"github.com/dentara/clinic-api/internal/middleware"
	"github.com/dentara/clinic-api/pkg/metrics"
)

// Handler is anything that mounts routes on the API group.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine *gin.Engine
	ops    *handler.Handler
}

func New(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics, ops *handler.Handler, handlers ...Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	middleware.RegisterValidation()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger(logger, m))
	engine.Use(middleware.ErrorHandler(logger))
	engine.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	engine.Use(middleware.CORS(corsConfig))

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst: cfg.RateLimit.Burst,
		})
		engine.Use(limiter.RateLimit())
	}

	engine.GET("/health", ops.HealthCheck)
	engine.GET("/health/live", ops.LivenessCheck)
	engine.GET("/health/ready", ops.ReadinessCheck)
	engine.GET("/metrics", ops.MetricsHandler)

	api := engine.Group("/api/v1")
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}

	return &Router{engine: engine, ops: ops}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Run(port int) error {
	return r.engine.Run(fmt.Sprintf(":%d", port))
}
