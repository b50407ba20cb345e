package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the inference endpoint is considered down
var ErrCircuitOpen = errors.New("inference circuit breaker open")

// InferenceRequest is a Hugging Face text-classification request
type InferenceRequest struct {
	Inputs  string            `json:"inputs"`
	Options *InferenceOptions `json:"options,omitempty"`
}

// InferenceOptions controls how the endpoint serves the request
type InferenceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// ClassificationScore is one class score returned by the endpoint
type ClassificationScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// inferenceErrorBody is the error document returned with non-200 statuses
type inferenceErrorBody struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time,omitempty"`
}

// StatusError is a non-200 answer from the inference endpoint
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inference service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("inference service returned status %d: %s", e.StatusCode, e.Message)
}

// ClientConfig configures an InferenceClient
type ClientConfig struct {
	BaseURL string
	ModelID string
	Token   string
	Timeout time.Duration
}

// InferenceClient is an HTTP client for a text-classification inference endpoint
type InferenceClient struct {
	baseURL    string
	modelID    string
	token      string
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker[any]
}

// NewInferenceClient creates a new inference client
func NewInferenceClient(cfg ClientConfig, logger *zap.Logger) *InferenceClient {
	breaker := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(5).
		WithDelay(15 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			logger.Warn("Inference circuit breaker state changed",
				zap.String("model", cfg.ModelID),
				zap.String("from", e.OldState.String()),
				zap.String("to", e.NewState.String()),
			)
		}).
		Build()

	return &InferenceClient{
		baseURL: cfg.BaseURL,
		modelID: cfg.ModelID,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: breaker,
	}
}

// ModelID returns the model the client targets
func (c *InferenceClient) ModelID() string {
	return c.modelID
}

// Classify sends a single text and returns every class score
func (c *InferenceClient) Classify(ctx context.Context, text string) ([]ClassificationScore, error) {
	if !c.breaker.TryAcquirePermit() {
		return nil, ErrCircuitOpen
	}

	scores, err := c.classify(ctx, text)
	if isBackendFailure(ctx, err) {
		c.breaker.RecordError(err)
	} else {
		c.breaker.RecordSuccess()
	}
	return scores, err
}

func (c *InferenceClient) classify(ctx context.Context, text string) ([]ClassificationScore, error) {
	reqBody := InferenceRequest{
		Inputs:  text,
		Options: &InferenceOptions{WaitForModel: true},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/models/"+c.modelID, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var errBody inferenceErrorBody
		if json.Unmarshal(respBody, &errBody) == nil && errBody.Error != "" {
			statusErr.Message = errBody.Error
		}
		return nil, statusErr
	}

	return decodeScores(respBody)
}

// decodeScores accepts both the nested [[...]] and the flat [...] layouts
func decodeScores(body []byte) ([]ClassificationScore, error) {
	var nested [][]ClassificationScore
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return nil, errors.New("empty response")
		}
		return nested[0], nil
	}

	var flat []ClassificationScore
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return flat, nil
}

// isBackendFailure reports errors that say the endpoint itself is unhealthy.
// Client-side cancellation and 4xx answers do not count against it.
func isBackendFailure(ctx context.Context, err error) bool {
	if err == nil || errors.Is(ctx.Err(), context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// Close releases idle connections
func (c *InferenceClient) Close() {
	c.httpClient.CloseIdleConnections()
}
