package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/ressKim-io/trilingual-sentiment/internal/usecase"
)

func TestHealthHandler_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("healthy when no dependencies", func(t *testing.T) {
		handler := NewHealthHandler(nil, nil, nil)

		router := gin.New()
		router.GET("/health", handler.Health)

		req, _ := http.NewRequest("GET", "/health", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var status HealthStatus
		err := json.Unmarshal(w.Body.Bytes(), &status)
		assert.NoError(t, err)
		assert.Equal(t, "healthy", status.Status)
		assert.Equal(t, "not configured", status.Components["database"])
		assert.Equal(t, "not configured", status.Components["redis"])
		assert.Equal(t, "not configured", status.Components["model"])
	})

	t.Run("lexicon fallback stays healthy", func(t *testing.T) {
		mockPredictor := new(MockPredictor)
		mockPredictor.On("Status").Return(&usecase.StatusOutput{Mode: "lexicon", Reason: "disabled"})
		handler := NewHealthHandler(nil, nil, mockPredictor)

		router := gin.New()
		router.GET("/health", handler.Health)

		req, _ := http.NewRequest("GET", "/health", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var status HealthStatus
		err := json.Unmarshal(w.Body.Bytes(), &status)
		assert.NoError(t, err)
		assert.Equal(t, "healthy", status.Status)
		assert.Equal(t, "lexicon fallback: disabled", status.Components["model"])
	})

	t.Run("unhealthy when redis is down", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		mr.Close()

		handler := NewHealthHandler(nil, client, nil)

		router := gin.New()
		router.GET("/health", handler.Health)

		req, _ := http.NewRequest("GET", "/health", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "unhealthy")
	})
}

func TestHealthHandler_Ready(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("ready when no database", func(t *testing.T) {
		handler := NewHealthHandler(nil, nil, nil)

		router := gin.New()
		router.GET("/ready", handler.Ready)

		req, _ := http.NewRequest("GET", "/ready", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ready")
	})
}
