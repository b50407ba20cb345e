package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/lexicon"
	"github.com/ressKim-io/trilingual-sentiment/internal/usecase"
)

// PredictRequest is the body of POST /api/v1/predict
type PredictRequest struct {
	Text     string `json:"text" binding:"required"`
	Language string `json:"language"`
	Full     bool   `json:"full"`
}

// PredictHandler handles prediction HTTP requests
type PredictHandler struct {
	predictor usecase.Predictor
}

// NewPredictHandler creates a new predict handler
func NewPredictHandler(predictor usecase.Predictor) *PredictHandler {
	return &PredictHandler{predictor: predictor}
}

// Predict handles POST /api/v1/predict
func (h *PredictHandler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleInvalidRequest(c, "text is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		HandleInvalidRequest(c, "text must not be blank")
		return
	}

	lang := string(lexicon.ResolveLanguage(req.Text, req.Language))

	var (
		output *usecase.PredictionOutput
		err    error
	)
	if req.Full {
		output, err = h.predictor.PredictDistribution(c.Request.Context(), req.Text, lang)
	} else {
		output, err = h.predictor.Predict(c.Request.Context(), req.Text, lang)
	}
	if err != nil {
		HandleUsecaseError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, output)
}

// Status handles GET /api/v1/status
func (h *PredictHandler) Status(c *gin.Context) {
	respondSuccess(c, http.StatusOK, h.predictor.Status())
}
