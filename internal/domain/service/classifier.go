package service

import (
	"context"
	"errors"
)

// RawScore is a label and score exactly as a model reports them
type RawScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier defines the interface for a model-backed text classifier
type Classifier interface {
	// Classify returns the top scoring raw label
	Classify(ctx context.Context, text string) (*RawScore, error)

	// ClassifyAll returns a score for every class the model knows
	ClassifyAll(ctx context.Context, text string) ([]RawScore, error)

	// ModelID identifies the model behind the classifier
	ModelID() string

	// Close releases the model
	Close() error
}

// ErrEmptyScores is returned by backends that produced no class scores
var ErrEmptyScores = errors.New("classifier returned no scores")

// TopScore picks the highest score, keeping the first on ties
func TopScore(scores []RawScore) (*RawScore, error) {
	if len(scores) == 0 {
		return nil, ErrEmptyScores
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return &best, nil
}
