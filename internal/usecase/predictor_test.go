package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/entity"
	"github.com/ressKim-io/trilingual-sentiment/internal/domain/lexicon"
	"github.com/ressKim-io/trilingual-sentiment/internal/domain/service"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/config"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/metrics"
)

// MockClassifier is a mock implementation of Classifier
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, text string) (*service.RawScore, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RawScore), args.Error(1)
}

func (m *MockClassifier) ClassifyAll(ctx context.Context, text string) ([]service.RawScore, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.RawScore), args.Error(1)
}

func (m *MockClassifier) ModelID() string {
	return "org/sentiment-model"
}

func (m *MockClassifier) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockPredictionRepository is a mock implementation of PredictionRepository
type MockPredictionRepository struct {
	mock.Mock
}

func (m *MockPredictionRepository) Create(ctx context.Context, record *entity.PredictionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockPredictionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.PredictionRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.PredictionRecord), args.Error(1)
}

func (m *MockPredictionRepository) List(ctx context.Context, limit, offset int) ([]*entity.PredictionRecord, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*entity.PredictionRecord), args.Get(1).(int64), args.Error(2)
}

// blockingClassifier ignores ctx and answers only when released
type blockingClassifier struct {
	release chan struct{}
}

func (c *blockingClassifier) Classify(context.Context, string) (*service.RawScore, error) {
	<-c.release
	return &service.RawScore{Label: "positive", Score: 1}, nil
}

func (c *blockingClassifier) ClassifyAll(context.Context, string) ([]service.RawScore, error) {
	<-c.release
	return []service.RawScore{{Label: "positive", Score: 1}}, nil
}

func (c *blockingClassifier) ModelID() string { return "slow" }
func (c *blockingClassifier) Close() error    { return nil }

// panickingClassifier fails the way a broken native backend does
type panickingClassifier struct{}

func (panickingClassifier) Classify(context.Context, string) (*service.RawScore, error) {
	panic("tokenizer exploded")
}

func (panickingClassifier) ClassifyAll(context.Context, string) ([]service.RawScore, error) {
	panic("tokenizer exploded")
}

func (panickingClassifier) ModelID() string { return "broken" }
func (panickingClassifier) Close() error    { return nil }

func testConfig() PredictorConfig {
	return PredictorConfig{
		Backend:        config.BackendHTTP,
		LabelMapping:   config.DefaultLabelMapping(),
		PredictTimeout: time.Second,
	}
}

func newModelPredictor(c service.Classifier, m *metrics.PredictorMetrics) Predictor {
	return NewPredictor(service.Acquired(c), testConfig(), nil, m, zap.NewNop())
}

func newLexiconPredictor() Predictor {
	return NewPredictor(service.Unavailable(service.ReasonDependencyMissing, errors.New("no runtime")),
		testConfig(), nil, metrics.NewNopPredictorMetrics(), zap.NewNop())
}

func TestPredictor_Predict_EmptyInput(t *testing.T) {
	inputs := []string{"", "   ", "\n\t "}

	for _, text := range inputs {
		t.Run("model "+text, func(t *testing.T) {
			mockClassifier := new(MockClassifier)
			p := newModelPredictor(mockClassifier, metrics.NewNopPredictorMetrics())

			out, err := p.Predict(context.Background(), text, "fr")

			require.NoError(t, err)
			assert.Equal(t, entity.NeutralEmpty, out.Prediction())
			assert.Equal(t, entity.ModeEmpty, out.Mode)
			mockClassifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
		})

		t.Run("lexicon "+text, func(t *testing.T) {
			out, err := newLexiconPredictor().Predict(context.Background(), text, "ar")

			require.NoError(t, err)
			assert.Equal(t, entity.NeutralEmpty, out.Prediction())
		})
	}
}

func TestPredictor_Predict_Model(t *testing.T) {
	t.Run("mapped raw label keeps raw score", func(t *testing.T) {
		mockClassifier := new(MockClassifier)
		p := newModelPredictor(mockClassifier, metrics.NewNopPredictorMetrics())

		mockClassifier.On("Classify", mock.Anything, "Best purchase ever").
			Return(&service.RawScore{Label: "LABEL_2", Score: 0.87}, nil)

		out, err := p.Predict(context.Background(), "  Best purchase ever  ", "en")

		require.NoError(t, err)
		assert.Equal(t, entity.LabelPositive, out.Label)
		assert.Equal(t, 0.87, out.Confidence)
		assert.Equal(t, entity.ModeModel, out.Mode)
		assert.Equal(t, "org/sentiment-model", out.ModelID)
		assert.Nil(t, out.Scores)
		mockClassifier.AssertExpectations(t)
	})

	t.Run("canonical raw label is used as is", func(t *testing.T) {
		mockClassifier := new(MockClassifier)
		p := newModelPredictor(mockClassifier, metrics.NewNopPredictorMetrics())

		mockClassifier.On("Classify", mock.Anything, mock.Anything).
			Return(&service.RawScore{Label: "Negative", Score: 0.64}, nil)

		out, err := p.Predict(context.Background(), "meh", "en")

		require.NoError(t, err)
		assert.Equal(t, entity.LabelNegative, out.Label)
		assert.Equal(t, 0.64, out.Confidence)
	})

	t.Run("unmapped raw label is neutral and counted", func(t *testing.T) {
		mockClassifier := new(MockClassifier)
		m := metrics.NewNopPredictorMetrics()
		core, logs := observer.New(zapcore.WarnLevel)
		p := NewPredictor(service.Acquired(mockClassifier), testConfig(), nil, m, zap.New(core))

		mockClassifier.On("Classify", mock.Anything, mock.Anything).
			Return(&service.RawScore{Label: "LABEL_9", Score: 0.91}, nil)

		out, err := p.Predict(context.Background(), "hmm", "en")

		require.NoError(t, err)
		assert.Equal(t, entity.LabelNeutral, out.Label)
		assert.Equal(t, 0.91, out.Confidence)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.UnmappedLabels.WithLabelValues("LABEL_9")))
		assert.Equal(t, 1, logs.FilterField(zap.String("raw_label", "LABEL_9")).Len())
	})

	t.Run("custom mapping", func(t *testing.T) {
		mockClassifier := new(MockClassifier)
		cfg := testConfig()
		cfg.LabelMapping = config.LabelMapping{"pos": entity.LabelPositive}
		p := NewPredictor(service.Acquired(mockClassifier), cfg, nil, metrics.NewNopPredictorMetrics(), zap.NewNop())

		mockClassifier.On("Classify", mock.Anything, mock.Anything).
			Return(&service.RawScore{Label: "POS", Score: 0.7}, nil)

		out, err := p.Predict(context.Background(), "nice", "en")

		require.NoError(t, err)
		assert.Equal(t, entity.LabelPositive, out.Label)
	})

	t.Run("classifier failure is surfaced, never neutral", func(t *testing.T) {
		mockClassifier := new(MockClassifier)
		m := metrics.NewNopPredictorMetrics()
		p := newModelPredictor(mockClassifier, m)

		mockClassifier.On("Classify", mock.Anything, mock.Anything).
			Return(nil, errors.New("CUDA out of memory"))

		out, err := p.Predict(context.Background(), "text", "en")

		assert.Nil(t, out)
		assert.ErrorIs(t, err, ErrInferenceFailed)
		assert.NotErrorIs(t, err, ErrInferenceTimeout)
		assert.Contains(t, err.Error(), "CUDA out of memory")
		assert.Equal(t, float64(1), testutil.ToFloat64(m.InferenceFailures.WithLabelValues("error")))
	})

	t.Run("deadline error from classifier is a timeout", func(t *testing.T) {
		mockClassifier := new(MockClassifier)
		p := newModelPredictor(mockClassifier, metrics.NewNopPredictorMetrics())

		mockClassifier.On("Classify", mock.Anything, mock.Anything).
			Return(nil, context.DeadlineExceeded)

		_, err := p.Predict(context.Background(), "text", "en")

		assert.ErrorIs(t, err, ErrInferenceTimeout)
		assert.NotErrorIs(t, err, ErrInferenceFailed)
	})
}

func TestPredictor_Predict_Timeout(t *testing.T) {
	slow := &blockingClassifier{release: make(chan struct{})}
	t.Cleanup(func() { close(slow.release) })

	m := metrics.NewNopPredictorMetrics()
	cfg := testConfig()
	cfg.PredictTimeout = 20 * time.Millisecond
	p := NewPredictor(service.Acquired(slow), cfg, nil, m, zap.NewNop())

	start := time.Now()
	_, err := p.Predict(context.Background(), "text", "en")

	assert.ErrorIs(t, err, ErrInferenceTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InferenceFailures.WithLabelValues("timeout")))
}

func TestPredictor_Predict_ClassifierPanic(t *testing.T) {
	m := metrics.NewNopPredictorMetrics()
	p := newModelPredictor(panickingClassifier{}, m)

	t.Run("predict", func(t *testing.T) {
		out, err := p.Predict(context.Background(), "text", "en")

		assert.Nil(t, out)
		assert.ErrorIs(t, err, ErrInferenceFailed)
		assert.Contains(t, err.Error(), "tokenizer exploded")
	})

	t.Run("distribution", func(t *testing.T) {
		_, err := p.PredictDistribution(context.Background(), "text", "en")

		assert.ErrorIs(t, err, ErrInferenceFailed)
	})

	assert.Equal(t, float64(2), testutil.ToFloat64(m.InferenceFailures.WithLabelValues("error")))
}

func TestPredictor_Predict_Canceled(t *testing.T) {
	t.Run("caller cancels while the model runs", func(t *testing.T) {
		slow := &blockingClassifier{release: make(chan struct{})}
		t.Cleanup(func() { close(slow.release) })

		m := metrics.NewNopPredictorMetrics()
		p := NewPredictor(service.Acquired(slow), testConfig(), nil, m, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)

		_, err := p.Predict(ctx, "text", "en")

		assert.ErrorIs(t, err, ErrRequestCanceled)
		assert.NotErrorIs(t, err, ErrInferenceFailed)
		assert.NotErrorIs(t, err, ErrInferenceTimeout)
		assert.Equal(t, float64(0), testutil.ToFloat64(m.InferenceFailures.WithLabelValues("error")))
		assert.Equal(t, float64(0), testutil.ToFloat64(m.InferenceFailures.WithLabelValues("timeout")))
	})

	t.Run("classifier reports cancellation", func(t *testing.T) {
		mockClassifier := new(MockClassifier)
		m := metrics.NewNopPredictorMetrics()
		p := newModelPredictor(mockClassifier, m)

		mockClassifier.On("Classify", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("failed to send request: %w", context.Canceled))

		_, err := p.Predict(context.Background(), "text", "en")

		assert.ErrorIs(t, err, ErrRequestCanceled)
		assert.Equal(t, float64(0), testutil.ToFloat64(m.InferenceFailures.WithLabelValues("error")))
	})
}

func TestPredictor_Predict_UnmappedLabelSeriesAreBounded(t *testing.T) {
	mockClassifier := new(MockClassifier)
	m := metrics.NewNopPredictorMetrics()
	p := newModelPredictor(mockClassifier, m)

	for i := 0; i <= maxUnmappedSeries; i++ {
		raw := fmt.Sprintf("weird_%d", i)
		mockClassifier.On("Classify", mock.Anything, raw).
			Return(&service.RawScore{Label: raw, Score: 0.9}, nil).Once()

		out, err := p.Predict(context.Background(), raw, "en")
		require.NoError(t, err)
		assert.Equal(t, entity.LabelNeutral, out.Label)
	}

	// maxUnmappedSeries raw labels plus the overflow series
	assert.Equal(t, maxUnmappedSeries+1, testutil.CollectAndCount(m.UnmappedLabels))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UnmappedLabels.WithLabelValues("weird_0")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UnmappedLabels.WithLabelValues(otherUnmappedLabel)))
}

func TestPredictor_Predict_LexiconMatchesScorer(t *testing.T) {
	p := newLexiconPredictor()

	cases := []struct {
		text     string
		language string
	}{
		{"I absolutely love this product!", "en"},
		{"C'est un mauvais film", "fr"},
		{"This is fine.", "en"},
		{"هذا المنتج رائع", "ar"},
		{"bad bad awful", "en"},
		{"great", "de"},
		{"", "en"},
		{"J’aime ce film, génial", "fr"},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			out, err := p.Predict(context.Background(), tc.text, tc.language)

			require.NoError(t, err)
			assert.Equal(t, lexicon.Score(tc.text, tc.language), out.Prediction())
		})
	}
}

func TestPredictor_Predict_Scenarios(t *testing.T) {
	p := newLexiconPredictor()

	out, err := p.Predict(context.Background(), "I absolutely love this product!", "en")
	require.NoError(t, err)
	assert.Equal(t, entity.LabelPositive, out.Label)
	assert.InDelta(t, 0.6, out.Confidence, 1e-9)
	assert.Equal(t, entity.ModeLexicon, out.Mode)

	out, err = p.Predict(context.Background(), "C'est un mauvais film", "fr")
	require.NoError(t, err)
	assert.Equal(t, entity.LabelNegative, out.Label)
	assert.InDelta(t, 0.6, out.Confidence, 1e-9)
	assert.Equal(t, entity.LanguageFrench, out.Language)

	out, err = p.Predict(context.Background(), "This is fine.", "en")
	require.NoError(t, err)
	assert.Equal(t, entity.Prediction{Label: entity.LabelNeutral, Confidence: 0.5}, out.Prediction())
}

func TestPredictor_PredictDistribution(t *testing.T) {
	t.Run("model sums normalized classes", func(t *testing.T) {
		mockClassifier := new(MockClassifier)
		p := newModelPredictor(mockClassifier, metrics.NewNopPredictorMetrics())

		mockClassifier.On("ClassifyAll", mock.Anything, "loved it").Return([]service.RawScore{
			{Label: "LABEL_0", Score: 0.05},
			{Label: "LABEL_1", Score: 0.15},
			{Label: "LABEL_2", Score: 0.8},
		}, nil)

		out, err := p.PredictDistribution(context.Background(), "loved it", "en")

		require.NoError(t, err)
		assert.Equal(t, entity.LabelPositive, out.Label)
		assert.Equal(t, 0.8, out.Confidence)
		require.NotNil(t, out.Scores)
		assert.Equal(t, entity.Distribution{Negative: 0.05, Neutral: 0.15, Positive: 0.8}, *out.Scores)
		mockClassifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
	})

	t.Run("unmapped classes land in neutral", func(t *testing.T) {
		mockClassifier := new(MockClassifier)
		p := newModelPredictor(mockClassifier, metrics.NewNopPredictorMetrics())

		mockClassifier.On("ClassifyAll", mock.Anything, mock.Anything).Return([]service.RawScore{
			{Label: "negative", Score: 0.5},
			{Label: "mixed", Score: 0.25},
			{Label: "neutral", Score: 0.25},
		}, nil)

		out, err := p.PredictDistribution(context.Background(), "text", "en")

		require.NoError(t, err)
		assert.Equal(t, entity.LabelNegative, out.Label)
		assert.Equal(t, entity.Distribution{Negative: 0.5, Neutral: 0.5}, *out.Scores)
	})

	t.Run("lexicon is one-hot", func(t *testing.T) {
		out, err := newLexiconPredictor().PredictDistribution(context.Background(), "I love it", "en")

		require.NoError(t, err)
		require.NotNil(t, out.Scores)
		assert.InDelta(t, 0.6, out.Scores.Positive, 1e-9)
		assert.Zero(t, out.Scores.Negative)
		assert.Zero(t, out.Scores.Neutral)
		assert.Equal(t, out.Scores.Best(), out.Prediction())
	})

	t.Run("empty is all zero", func(t *testing.T) {
		out, err := newLexiconPredictor().PredictDistribution(context.Background(), " ", "en")

		require.NoError(t, err)
		assert.Equal(t, entity.Distribution{}, *out.Scores)
	})

	t.Run("no scores is an inference failure", func(t *testing.T) {
		mockClassifier := new(MockClassifier)
		p := newModelPredictor(mockClassifier, metrics.NewNopPredictorMetrics())

		mockClassifier.On("ClassifyAll", mock.Anything, mock.Anything).Return([]service.RawScore{}, nil)

		_, err := p.PredictDistribution(context.Background(), "text", "en")

		assert.ErrorIs(t, err, ErrInferenceFailed)
	})
}

func TestPredictor_Record(t *testing.T) {
	t.Run("stores outcome", func(t *testing.T) {
		mockRepo := new(MockPredictionRepository)
		p := NewPredictor(service.Unavailable(service.ReasonDisabled, nil), testConfig(), mockRepo,
			metrics.NewNopPredictorMetrics(), zap.NewNop())

		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *entity.PredictionRecord) bool {
			return r.Text == "great stuff" && r.Label == entity.LabelPositive && r.Mode == entity.ModeLexicon
		})).Return(nil)

		out, err := p.Predict(context.Background(), " great stuff ", "en")

		require.NoError(t, err)
		require.NotNil(t, out.ID)
		mockRepo.AssertExpectations(t)
	})

	t.Run("storage failure does not fail the prediction", func(t *testing.T) {
		mockRepo := new(MockPredictionRepository)
		core, logs := observer.New(zapcore.WarnLevel)
		p := NewPredictor(service.Unavailable(service.ReasonDisabled, nil), testConfig(), mockRepo,
			metrics.NewNopPredictorMetrics(), zap.New(core))

		mockRepo.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

		out, err := p.Predict(context.Background(), "great", "en")

		require.NoError(t, err)
		assert.Nil(t, out.ID)
		assert.Equal(t, entity.LabelPositive, out.Label)
		assert.Equal(t, 1, logs.FilterMessage("Failed to store prediction").Len())
	})

	t.Run("empty input is not stored", func(t *testing.T) {
		mockRepo := new(MockPredictionRepository)
		p := NewPredictor(service.Unavailable(service.ReasonDisabled, nil), testConfig(), mockRepo,
			metrics.NewNopPredictorMetrics(), zap.NewNop())

		_, err := p.Predict(context.Background(), "", "en")

		require.NoError(t, err)
		mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestPredictor_History(t *testing.T) {
	t.Run("disabled without repository", func(t *testing.T) {
		_, err := newLexiconPredictor().History(context.Background(), 10, 0)

		assert.ErrorIs(t, err, ErrHistoryDisabled)
	})

	t.Run("clamps limit", func(t *testing.T) {
		mockRepo := new(MockPredictionRepository)
		p := NewPredictor(service.Unavailable(service.ReasonDisabled, nil), testConfig(), mockRepo,
			metrics.NewNopPredictorMetrics(), zap.NewNop())

		records := []*entity.PredictionRecord{
			entity.NewPredictionRecord("a", entity.LanguageEnglish, entity.Prediction{Label: entity.LabelNeutral, Confidence: 0.5}, entity.ModeLexicon, "", 1),
		}
		mockRepo.On("List", mock.Anything, 100, 0).Return(records, int64(5), nil)

		out, err := p.History(context.Background(), 500, -3)

		require.NoError(t, err)
		assert.Equal(t, 100, out.Limit)
		assert.Equal(t, 0, out.Offset)
		assert.Equal(t, int64(5), out.Total)
		assert.True(t, out.HasMore)
		mockRepo.AssertExpectations(t)
	})

	t.Run("default limit", func(t *testing.T) {
		mockRepo := new(MockPredictionRepository)
		p := NewPredictor(service.Unavailable(service.ReasonDisabled, nil), testConfig(), mockRepo,
			metrics.NewNopPredictorMetrics(), zap.NewNop())

		mockRepo.On("List", mock.Anything, 20, 0).Return([]*entity.PredictionRecord{}, int64(0), nil)

		out, err := p.History(context.Background(), 0, 0)

		require.NoError(t, err)
		assert.False(t, out.HasMore)
	})
}

func TestPredictor_GetRecord(t *testing.T) {
	mockRepo := new(MockPredictionRepository)
	p := NewPredictor(service.Unavailable(service.ReasonDisabled, nil), testConfig(), mockRepo,
		metrics.NewNopPredictorMetrics(), zap.NewNop())

	found := entity.NewPredictionRecord("x", entity.LanguageArabic, entity.Prediction{Label: entity.LabelNegative, Confidence: 0.6}, entity.ModeLexicon, "", 2)
	missing := uuid.New()
	mockRepo.On("GetByID", mock.Anything, found.ID).Return(found, nil)
	mockRepo.On("GetByID", mock.Anything, missing).Return(nil, nil)

	rec, err := p.GetRecord(context.Background(), found.ID)
	require.NoError(t, err)
	assert.Equal(t, found, rec)

	_, err = p.GetRecord(context.Background(), missing)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestPredictor_Status(t *testing.T) {
	t.Run("model", func(t *testing.T) {
		status := newModelPredictor(new(MockClassifier), metrics.NewNopPredictorMetrics()).Status()

		assert.Equal(t, entity.ModeModel, status.Mode)
		assert.True(t, status.ModelAvailable)
		assert.Equal(t, "org/sentiment-model", status.ModelID)
		assert.Empty(t, status.Reason)
		assert.False(t, status.HistoryEnabled)
	})

	t.Run("lexicon", func(t *testing.T) {
		status := newLexiconPredictor().Status()

		assert.Equal(t, entity.ModeLexicon, status.Mode)
		assert.False(t, status.ModelAvailable)
		assert.Equal(t, "dependency_missing", status.Reason)
		assert.Equal(t, "no runtime", status.Error)
	})
}

func TestPredictor_Close(t *testing.T) {
	mockClassifier := new(MockClassifier)
	mockClassifier.On("Close").Return(nil)

	require.NoError(t, newModelPredictor(mockClassifier, metrics.NewNopPredictorMetrics()).Close())
	mockClassifier.AssertExpectations(t)

	assert.NoError(t, newLexiconPredictor().Close())
}
