package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response is the envelope of every JSON API answer. Data is set on success,
// Error otherwise.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *MetaInfo  `json:"meta"`
}

// ErrorInfo is a machine readable code with a message for humans
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetaInfo ties a response to its request
type MetaInfo struct {
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
}

// requestID returns the ID set by the RequestID middleware. Without one a new
// ID is stored on the context so later log lines agree with the response.
func requestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	id := uuid.New().String()
	c.Set("request_id", id)
	return id
}

func newMeta(c *gin.Context) *MetaInfo {
	return &MetaInfo{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID(c),
	}
}

func respondSuccess(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data, Meta: newMeta(c)})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Error: &ErrorInfo{Code: code, Message: message},
		Meta:  newMeta(c),
	})
}
