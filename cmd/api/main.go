package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ressKim-io/trilingual-sentiment/internal/adapter/http/router"
	"github.com/ressKim-io/trilingual-sentiment/internal/adapter/repository/postgres"
	"github.com/ressKim-io/trilingual-sentiment/internal/domain/repository"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/cache"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/config"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/database"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/logger"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/metrics"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/model"
	"github.com/ressKim-io/trilingual-sentiment/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration. Invalid fields fall back to defaults.
	cfg := config.Load()

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	for _, issue := range cfg.Issues {
		log.Warn("Invalid configuration, using default", zap.String("issue", issue))
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	// Prediction history (optional)
	var (
		db   *gorm.DB
		repo repository.PredictionRepository
	)
	if cfg.Database.Enabled {
		db, err = database.NewPostgresDB(&cfg.Database)
		if err != nil {
			log.Error("Failed to connect to database", zap.Error(err))
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("Connected to database")

		if err := database.AutoMigrate(db); err != nil {
			log.Error("Failed to run migrations", zap.Error(err))
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("Database migrations completed")
		repo = postgres.NewPredictionRepository(db)
	}

	// Initialize Redis (optional, continue without it)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, continuing without it", zap.Error(err))
			redisClient = nil
		} else {
			log.Info("Connected to Redis")
		}
	}

	var limiter cache.Limiter
	if cfg.RateLimit.Enabled {
		limiter = newLimiter(cfg.RateLimit, redisClient, log)
	}

	// Acquire the model; the predictor falls back to the lexicon without one
	reg := metrics.NewRegistry()
	predictorMetrics := metrics.NewPredictorMetrics(reg)
	acq := model.Acquire(context.Background(), &cfg.Model, log, predictorMetrics)

	predictor := usecase.NewPredictor(acq, usecase.PredictorConfig{
		Backend:        cfg.Model.Backend,
		LabelMapping:   cfg.Model.LabelMapping,
		PredictTimeout: cfg.Model.PredictTimeout,
	}, repo, predictorMetrics, log)

	// Setup router
	r := router.Setup(router.Dependencies{
		Predictor: predictor,
		DB:        db,
		Redis:     redisClient,
		Limiter:   limiter,
		Registry:  reg,
		Logger:    log,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("Starting server",
			zap.String("address", addr),
			zap.String("mode", string(predictor.Status().Mode)),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := predictor.Close(); err != nil {
		log.Warn("Failed to release model", zap.Error(err))
	}

	// Close database connection
	if db != nil {
		_ = database.Close(db)
	}

	// Close Redis connection
	if redisClient != nil {
		_ = redisClient.Close()
	}

	log.Info("Server exited")
	return nil
}

// newLimiter prefers the shared Redis counter and falls back to a
// per-process limiter when Redis is absent or failing.
func newLimiter(cfg config.RateLimitConfig, redisClient *redis.Client, log *zap.Logger) cache.Limiter {
	memory := cache.NewMemoryLimiter(cfg.RequestsPerMinute, cfg.Burst)
	if redisClient == nil {
		return memory
	}

	shared := cache.NewRedisLimiter(redisClient, clockwork.NewRealClock(), cfg.RequestsPerMinute, cfg.Burst)
	return cache.NewFallbackLimiter(shared, memory, func(err error) {
		log.Warn("Redis rate limiter failed, using in-memory limiter", zap.Error(err))
	})
}
