package entity

import (
	"time"

	"github.com/google/uuid"
)

// PredictionRecord is a stored prediction, kept for the history API
type PredictionRecord struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Text       string    `json:"text" gorm:"type:text;not null"`
	Language   Language  `json:"language" gorm:"type:varchar(8);not null"`
	Label      Label     `json:"label" gorm:"type:varchar(16);not null;index"`
	Confidence float64   `json:"confidence" gorm:"type:decimal(5,4)"`
	Mode       Mode      `json:"mode" gorm:"type:varchar(16);not null"`
	ModelID    string    `json:"model_id" gorm:"type:varchar(255)"`
	LatencyMs  int64     `json:"latency_ms" gorm:"default:0"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM
func (PredictionRecord) TableName() string {
	return "prediction_records"
}

// NewPredictionRecord creates a record for a finished prediction
func NewPredictionRecord(text string, lang Language, p Prediction, mode Mode, modelID string, latencyMs int64) *PredictionRecord {
	return &PredictionRecord{
		ID:         uuid.New(),
		Text:       text,
		Language:   lang,
		Label:      p.Label,
		Confidence: p.Confidence,
		Mode:       mode,
		ModelID:    modelID,
		LatencyMs:  latencyMs,
	}
}

// Prediction returns the stored label and confidence
func (r *PredictionRecord) Prediction() Prediction {
	return Prediction{Label: r.Label, Confidence: r.Confidence}
}
