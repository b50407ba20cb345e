package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ressKim-io/trilingual-sentiment/internal/usecase"
)

// HistoryHandler serves stored predictions
type HistoryHandler struct {
	predictor usecase.Predictor
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(predictor usecase.Predictor) *HistoryHandler {
	return &HistoryHandler{predictor: predictor}
}

// ListPredictions handles GET /api/v1/predictions
func (h *HistoryHandler) ListPredictions(c *gin.Context) {
	page := ParsePagination(c)

	output, err := h.predictor.History(c.Request.Context(), page.Limit, page.Offset)
	if err != nil {
		HandleUsecaseError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, output)
}

// GetPrediction handles GET /api/v1/predictions/:id
func (h *HistoryHandler) GetPrediction(c *gin.Context) {
	id, err := ExtractUUIDParam(c, "id")
	if err != nil {
		HandleInvalidUUID(c, "prediction id")
		return
	}

	record, err := h.predictor.GetRecord(c.Request.Context(), id)
	if err != nil {
		HandleUsecaseError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, record)
}
