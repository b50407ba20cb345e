package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/entity"
	"github.com/ressKim-io/trilingual-sentiment/internal/usecase"
)

func setupWebRouter(h *WebHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", h.Index)
	r.POST("/", h.Analyze)
	return r
}

func postForm(router *gin.Engine, values url.Values) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebHandler_Index(t *testing.T) {
	router := setupWebRouter(NewWebHandler(new(MockPredictor)))

	req, _ := http.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<form")
	assert.Contains(t, w.Body.String(), `<option value="auto" selected>`)
}

func TestWebHandler_Analyze(t *testing.T) {
	t.Run("renders label bars and json", func(t *testing.T) {
		mockUC := new(MockPredictor)
		router := setupWebRouter(NewWebHandler(mockUC))

		mockUC.On("PredictDistribution", mock.Anything, "I love it", "en").Return(&usecase.PredictionOutput{
			Label:      entity.LabelPositive,
			Confidence: 0.8,
			Mode:       entity.ModeModel,
			Language:   entity.LanguageEnglish,
			Scores:     &entity.Distribution{Negative: 0.05, Neutral: 0.15, Positive: 0.8},
		}, nil)

		w := postForm(router, url.Values{"text": {"I love it"}, "language": {"en"}})

		body := w.Body.String()
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, body, `class="tag positive"`)
		assert.Contains(t, body, "80.0%")
		assert.Equal(t, 3, strings.Count(body, `class="bar-row"`))
		assert.Contains(t, body, "&#34;positive&#34;: 0.8")
		assert.Contains(t, body, `<option value="en" selected>`)
	})

	t.Run("blank text shows a warning", func(t *testing.T) {
		mockUC := new(MockPredictor)
		router := setupWebRouter(NewWebHandler(mockUC))

		w := postForm(router, url.Values{"text": {"  "}})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Please enter some text to analyze.")
		mockUC.AssertNotCalled(t, "PredictDistribution", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("inference failure shows an error", func(t *testing.T) {
		mockUC := new(MockPredictor)
		router := setupWebRouter(NewWebHandler(mockUC))

		mockUC.On("PredictDistribution", mock.Anything, "text", "fr").
			Return(nil, fmt.Errorf("%w: boom", usecase.ErrInferenceFailed))

		w := postForm(router, url.Values{"text": {"text"}, "language": {"fr"}})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "model inference failed")
	})
}

func TestScoreBars(t *testing.T) {
	bars := scoreBars(entity.Distribution{Negative: 0.2, Neutral: 0.2, Positive: 0.6})

	assert.Len(t, bars, 3)
	assert.Equal(t, entity.LabelNegative, bars[0].Label)
	assert.InDelta(t, 100/1.2, bars[2].Width, 1e-9)
	assert.InDelta(t, 0.2/0.72*100, bars[0].Width, 1e-9)

	empty := scoreBars(entity.Distribution{})
	assert.Zero(t, empty[1].Width)
}
