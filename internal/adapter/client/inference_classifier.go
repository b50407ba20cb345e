package client

import (
	"context"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/service"
)

// InferenceClassifier adapts InferenceClient to the Classifier interface
type InferenceClassifier struct {
	client *InferenceClient
}

// NewInferenceClassifier creates a new InferenceClassifier
func NewInferenceClassifier(client *InferenceClient) *InferenceClassifier {
	return &InferenceClassifier{client: client}
}

var _ service.Classifier = (*InferenceClassifier)(nil)

// Classify returns the top scoring class
func (c *InferenceClassifier) Classify(ctx context.Context, text string) (*service.RawScore, error) {
	scores, err := c.ClassifyAll(ctx, text)
	if err != nil {
		return nil, err
	}
	return service.TopScore(scores)
}

// ClassifyAll returns every class score
func (c *InferenceClassifier) ClassifyAll(ctx context.Context, text string) ([]service.RawScore, error) {
	resp, err := c.client.Classify(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, service.ErrEmptyScores
	}

	scores := make([]service.RawScore, len(resp))
	for i, s := range resp {
		scores[i] = service.RawScore{Label: s.Label, Score: s.Score}
	}
	return scores, nil
}

// ModelID returns the remote model identifier
func (c *InferenceClassifier) ModelID() string {
	return c.client.ModelID()
}

// Close releases idle connections
func (c *InferenceClassifier) Close() error {
	c.client.Close()
	return nil
}
