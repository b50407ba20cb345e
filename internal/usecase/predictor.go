package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/entity"
	"github.com/ressKim-io/trilingual-sentiment/internal/domain/lexicon"
	"github.com/ressKim-io/trilingual-sentiment/internal/domain/repository"
	"github.com/ressKim-io/trilingual-sentiment/internal/domain/service"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/metrics"
)

// Error definitions for the predictor
var (
	ErrInferenceFailed  = errors.New("inference failed")
	ErrInferenceTimeout = errors.New("inference timed out")
	ErrRequestCanceled  = errors.New("request canceled")
	ErrRecordNotFound   = errors.New("prediction record not found")
	ErrHistoryDisabled  = errors.New("prediction history is disabled")
)

// LabelMapper resolves raw model labels to canonical labels
type LabelMapper interface {
	Lookup(raw string) (entity.Label, bool)
}

// PredictorConfig configures a Predictor
type PredictorConfig struct {
	Backend        string
	LabelMapping   LabelMapper
	PredictTimeout time.Duration
}

// PredictionOutput represents the output of a prediction
type PredictionOutput struct {
	ID         *uuid.UUID           `json:"id,omitempty"`
	Label      entity.Label         `json:"label"`
	Confidence float64              `json:"confidence"`
	Mode       entity.Mode          `json:"mode"`
	Language   entity.Language      `json:"language"`
	ModelID    string               `json:"model_id,omitempty"`
	LatencyMs  int64                `json:"latency_ms"`
	Scores     *entity.Distribution `json:"scores,omitempty"`
}

// Prediction returns the label and confidence pair
func (o *PredictionOutput) Prediction() entity.Prediction {
	return entity.Prediction{Label: o.Label, Confidence: o.Confidence}
}

// HistoryOutput represents a page of stored predictions
type HistoryOutput struct {
	Records []*entity.PredictionRecord `json:"records"`
	Total   int64                      `json:"total"`
	Limit   int                        `json:"limit"`
	Offset  int                        `json:"offset"`
	HasMore bool                       `json:"has_more"`
}

// StatusOutput describes which path predictions take
type StatusOutput struct {
	Mode           entity.Mode `json:"mode"`
	Backend        string      `json:"backend"`
	ModelID        string      `json:"model_id,omitempty"`
	ModelAvailable bool        `json:"model_available"`
	Reason         string      `json:"reason,omitempty"`
	Error          string      `json:"error,omitempty"`
	HistoryEnabled bool        `json:"history_enabled"`
}

// Predictor defines the interface for sentiment prediction
type Predictor interface {
	// Predict returns the single best label
	Predict(ctx context.Context, text, language string) (*PredictionOutput, error)

	// PredictDistribution is Predict with a confidence for every label
	PredictDistribution(ctx context.Context, text, language string) (*PredictionOutput, error)

	History(ctx context.Context, limit, offset int) (*HistoryOutput, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*entity.PredictionRecord, error)
	Status() *StatusOutput
	Close() error
}

// maxUnmappedSeries bounds the raw_label values of the unmapped labels
// metric; labels beyond it are counted as otherUnmappedLabel.
const (
	maxUnmappedSeries  = 20
	otherUnmappedLabel = "other"
)

type predictor struct {
	acquisition service.Acquisition
	classifier  service.Classifier
	hasModel    bool
	cfg         PredictorConfig
	repo        repository.PredictionRepository
	metrics     *metrics.PredictorMetrics
	logger      *zap.Logger

	unmappedMu sync.Mutex
	unmapped   map[string]struct{}
}

// NewPredictor creates a predictor. It never fails: without an acquired
// classifier every prediction uses the lexicon scorer. repo may be nil.
func NewPredictor(
	acq service.Acquisition,
	cfg PredictorConfig,
	repo repository.PredictionRepository,
	m *metrics.PredictorMetrics,
	logger *zap.Logger,
) Predictor {
	classifier, ok := acq.Classifier()
	return &predictor{
		acquisition: acq,
		classifier:  classifier,
		hasModel:    ok,
		unmapped:    make(map[string]struct{}),
		cfg:         cfg,
		repo:        repo,
		metrics:     m,
		logger:      logger,
	}
}

func (p *predictor) Predict(ctx context.Context, text, language string) (*PredictionOutput, error) {
	return p.predict(ctx, text, language, false)
}

func (p *predictor) PredictDistribution(ctx context.Context, text, language string) (*PredictionOutput, error) {
	return p.predict(ctx, text, language, true)
}

func (p *predictor) predict(ctx context.Context, text, language string, full bool) (*PredictionOutput, error) {
	start := time.Now()
	out := &PredictionOutput{Language: entity.ParseLanguage(language)}

	trimmed := strings.TrimSpace(text)
	var dist entity.Distribution
	switch {
	case trimmed == "":
		out.Mode = entity.ModeEmpty
		dist = entity.OneHot(entity.NeutralEmpty)
		p.apply(out, entity.NeutralEmpty)

	case !p.hasModel:
		out.Mode = entity.ModeLexicon
		dist = lexicon.ScoreDistribution(text, language)
		p.apply(out, lexicon.Score(text, language))

	default:
		out.Mode = entity.ModeModel
		out.ModelID = p.classifier.ModelID()
		pred, d, err := p.classify(ctx, trimmed, full)
		if err != nil {
			return nil, err
		}
		dist = d
		p.apply(out, pred)
	}

	if full {
		out.Scores = &dist
	}

	elapsed := time.Since(start)
	out.LatencyMs = elapsed.Milliseconds()
	p.metrics.Predictions.WithLabelValues(string(out.Mode), string(out.Label)).Inc()
	p.metrics.InferenceDuration.WithLabelValues(string(out.Mode)).Observe(elapsed.Seconds())

	if out.Mode != entity.ModeEmpty {
		p.record(ctx, trimmed, out)
	}
	return out, nil
}

func (p *predictor) apply(out *PredictionOutput, pred entity.Prediction) {
	out.Label = pred.Label
	out.Confidence = pred.Confidence
}

type classifyResult struct {
	scores []service.RawScore
	err    error
}

// classify runs the model under the prediction timeout. The deadline is
// enforced here as well, for backends that cannot observe ctx mid-call.
func (p *predictor) classify(ctx context.Context, text string, full bool) (entity.Prediction, entity.Distribution, error) {
	if p.cfg.PredictTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PredictTimeout)
		defer cancel()
	}

	done := make(chan classifyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- classifyResult{err: fmt.Errorf("classifier panic: %v", r)}
			}
		}()

		if full {
			scores, err := p.classifier.ClassifyAll(ctx, text)
			done <- classifyResult{scores: scores, err: err}
			return
		}
		best, err := p.classifier.Classify(ctx, text)
		if err != nil {
			done <- classifyResult{err: err}
			return
		}
		done <- classifyResult{scores: []service.RawScore{*best}}
	}()

	var res classifyResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		return entity.Prediction{}, entity.Distribution{}, p.inferenceError(res.err)
	}

	best, err := service.TopScore(res.scores)
	if err != nil {
		return entity.Prediction{}, entity.Distribution{}, p.inferenceError(err)
	}

	pred := entity.Prediction{Label: p.normalize(best.Label), Confidence: best.Score}
	if !full {
		return pred, entity.OneHot(pred), nil
	}

	var dist entity.Distribution
	for _, s := range res.scores {
		dist.Add(p.normalize(s.Label), s.Score)
	}
	return pred, dist, nil
}

func (p *predictor) inferenceError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrRequestCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		p.metrics.InferenceFailures.WithLabelValues("timeout").Inc()
		return fmt.Errorf("%w: %w", ErrInferenceTimeout, err)
	}
	p.metrics.InferenceFailures.WithLabelValues("error").Inc()
	return fmt.Errorf("%w: %w", ErrInferenceFailed, err)
}

// normalize maps a raw model label onto the canonical vocabulary.
// Unmapped labels are neutral.
func (p *predictor) normalize(raw string) entity.Label {
	if label, ok := entity.ParseLabel(raw); ok {
		return label
	}
	if p.cfg.LabelMapping != nil {
		if label, ok := p.cfg.LabelMapping.Lookup(raw); ok {
			return label
		}
	}

	p.metrics.UnmappedLabels.WithLabelValues(p.unmappedSeries(raw)).Inc()
	p.logger.Warn("Unmapped model label, using neutral", zap.String("raw_label", raw))
	return entity.LabelNeutral
}

// unmappedSeries returns raw while fewer than maxUnmappedSeries distinct
// labels have been seen, otherUnmappedLabel afterwards.
func (p *predictor) unmappedSeries(raw string) string {
	p.unmappedMu.Lock()
	defer p.unmappedMu.Unlock()

	if _, ok := p.unmapped[raw]; ok {
		return raw
	}
	if len(p.unmapped) >= maxUnmappedSeries {
		return otherUnmappedLabel
	}
	p.unmapped[raw] = struct{}{}
	return raw
}

// record stores the outcome. Storage problems never fail the prediction.
func (p *predictor) record(ctx context.Context, text string, out *PredictionOutput) {
	if p.repo == nil {
		return
	}

	rec := entity.NewPredictionRecord(text, out.Language, out.Prediction(), out.Mode, out.ModelID, out.LatencyMs)
	if err := p.repo.Create(ctx, rec); err != nil {
		p.logger.Warn("Failed to store prediction", zap.Error(err))
		return
	}
	out.ID = &rec.ID
}

func (p *predictor) History(ctx context.Context, limit, offset int) (*HistoryOutput, error) {
	if p.repo == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := p.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	return &HistoryOutput{
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(records)) < total,
	}, nil
}

func (p *predictor) GetRecord(ctx context.Context, id uuid.UUID) (*entity.PredictionRecord, error) {
	if p.repo == nil {
		return nil, ErrHistoryDisabled
	}

	rec, err := p.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

func (p *predictor) Status() *StatusOutput {
	status := &StatusOutput{
		Mode:           entity.ModeLexicon,
		Backend:        p.cfg.Backend,
		Reason:         string(p.acquisition.Reason()),
		HistoryEnabled: p.repo != nil,
	}
	if p.hasModel {
		status.Mode = entity.ModeModel
		status.ModelID = p.classifier.ModelID()
		status.ModelAvailable = true
	}
	if err := p.acquisition.Err(); err != nil {
		status.Error = err.Error()
	}
	return status
}

// Close releases the model
func (p *predictor) Close() error {
	if !p.hasModel {
		return nil
	}
	return p.classifier.Close()
}
