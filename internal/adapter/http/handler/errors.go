package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ressKim-io/trilingual-sentiment/internal/usecase"
)

// statusClientClosedRequest is the non-standard status for a client that
// went away before the response was written
const statusClientClosedRequest = 499

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	StatusCode int
	Code       string
	Message    string
}

// MapUsecaseError maps usecase errors to HTTP error responses.
// It provides consistent error handling across all handlers.
func MapUsecaseError(err error) ErrorResponse {
	switch {
	case errors.Is(err, usecase.ErrRecordNotFound):
		return ErrorResponse{
			StatusCode: http.StatusNotFound,
			Code:       "NOT_FOUND",
			Message:    "prediction not found",
		}
	case errors.Is(err, usecase.ErrHistoryDisabled):
		return ErrorResponse{
			StatusCode: http.StatusServiceUnavailable,
			Code:       "HISTORY_DISABLED",
			Message:    "prediction history is disabled",
		}
	case errors.Is(err, usecase.ErrInferenceTimeout):
		return ErrorResponse{
			StatusCode: http.StatusGatewayTimeout,
			Code:       "INFERENCE_TIMEOUT",
			Message:    "model inference timed out",
		}
	case errors.Is(err, usecase.ErrRequestCanceled):
		return ErrorResponse{
			StatusCode: statusClientClosedRequest,
			Code:       "REQUEST_CANCELED",
			Message:    "request canceled",
		}
	case errors.Is(err, usecase.ErrInferenceFailed):
		return ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Code:       "INFERENCE_FAILED",
			Message:    "model inference failed",
		}
	default:
		return ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "internal server error",
		}
	}
}

// HandleUsecaseError handles a usecase error by sending an appropriate HTTP response.
// It maps the error to an HTTP status and sends a JSON error response.
func HandleUsecaseError(c *gin.Context, err error) {
	errResp := MapUsecaseError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	respondError(c, errResp.StatusCode, errResp.Code, errResp.Message)
}

// HandleInvalidUUID handles an invalid UUID parameter error.
func HandleInvalidUUID(c *gin.Context, paramName string) {
	respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid "+paramName)
}

// HandleInvalidRequest handles a generic invalid request error.
func HandleInvalidRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, "INVALID_REQUEST", message)
}
