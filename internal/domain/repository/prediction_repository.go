package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/entity"
)

// PredictionRepository defines the interface for prediction history
type PredictionRepository interface {
	// Create stores a finished prediction
	Create(ctx context.Context, record *entity.PredictionRecord) error

	// GetByID retrieves a record by its ID, or nil when it does not exist
	GetByID(ctx context.Context, id uuid.UUID) (*entity.PredictionRecord, error)

	// List retrieves records newest first with pagination
	List(ctx context.Context, limit, offset int) ([]*entity.PredictionRecord, int64, error)
}
