package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ressKim-io/trilingual-sentiment/internal/adapter/http/handler"
	"github.com/ressKim-io/trilingual-sentiment/internal/adapter/http/middleware"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/cache"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/metrics"
	"github.com/ressKim-io/trilingual-sentiment/internal/usecase"
)

// Dependencies holds everything the router wires into handlers.
// DB, Redis and Limiter may be nil.
type Dependencies struct {
	Predictor usecase.Predictor
	DB        *gorm.DB
	Redis     *redis.Client
	Limiter   cache.Limiter
	Registry  *prometheus.Registry
	Logger    *zap.Logger
}

// Setup creates and configures the Gin router
func Setup(deps Dependencies) *gin.Engine {
	router := gin.New()
	httpMetrics := metrics.NewHTTPMetrics(deps.Registry)

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.CORS())
	router.Use(middleware.Metrics(httpMetrics))

	// Health endpoints
	healthHandler := handler.NewHealthHandler(deps.DB, deps.Redis, deps.Predictor)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Registry)))

	// Initialize handlers
	predictHandler := handler.NewPredictHandler(deps.Predictor)
	historyHandler := handler.NewHistoryHandler(deps.Predictor)
	webHandler := handler.NewWebHandler(deps.Predictor)

	// Prediction routes are rate limited per client
	limited := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if deps.Limiter == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{middleware.RateLimit(deps.Limiter, httpMetrics, deps.Logger), h}
	}

	// Web page
	router.GET("/", webHandler.Index)
	router.POST("/", limited(webHandler.Analyze)...)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/predict", limited(predictHandler.Predict)...)
		v1.GET("/status", predictHandler.Status)

		predictions := v1.Group("/predictions")
		{
			predictions.GET("", historyHandler.ListPredictions)
			predictions.GET("/:id", historyHandler.GetPrediction)
		}
	}

	return router
}
