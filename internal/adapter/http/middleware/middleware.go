package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/cache"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/metrics"
)

const requestIDHeader = "X-Request-ID"

// RequestID attaches a request ID to the context and the response.
// A client supplied X-Request-ID is reused.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// Logger writes one access log entry per request
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("size", c.Writer.Size()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("Request failed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("Request rejected", fields...)
		default:
			logger.Info("Request handled", fields...)
		}
	}
}

// Recovery turns a panic into a 500 response
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered",
					zap.Any("panic", r),
					zap.String("request_id", c.GetString("request_id")),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		c.Next()
	}
}

// CORS allows any origin and answers preflight requests
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Metrics records request count, latency and in-flight requests.
// It skips /metrics and the health endpoints.
func Metrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "/metrics" || route == "/health" || route == "/ready" {
			c.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}

		m.InFlightGauge.Inc()
		defer m.InFlightGauge.Dec()

		timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
			status := strconv.Itoa(c.Writer.Status())
			m.RequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(v)
			m.RequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		}))

		c.Next()
		timer.ObserveDuration()
	}
}

// RateLimit rejects clients over their limit with 429. Limiter errors let
// the request through.
func RateLimit(limiter cache.Limiter, m *metrics.HTTPMetrics, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			m.RateLimited.Inc()
			abortWithError(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
		"meta": gin.H{
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"request_id": c.GetString("request_id"),
		},
	})
}
