// Package model acquires the classifier the predictor runs on. Acquisition
// never fails: every problem becomes an Unavailable outcome with a reason.
package model

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/ressKim-io/trilingual-sentiment/internal/adapter/client"
	"github.com/ressKim-io/trilingual-sentiment/internal/adapter/onnx"
	"github.com/ressKim-io/trilingual-sentiment/internal/domain/service"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/config"
	"github.com/ressKim-io/trilingual-sentiment/internal/infrastructure/metrics"
)

const (
	probeText       = "warm-up"
	minProbeClasses = 2
)

type builder func(cfg *config.ModelConfig, logger *zap.Logger) (service.Classifier, error)

// Acquire builds the configured backend and checks it with one warm-up
// classification bounded by the load timeout
func Acquire(ctx context.Context, cfg *config.ModelConfig, logger *zap.Logger, m *metrics.PredictorMetrics) service.Acquisition {
	acq := acquire(ctx, cfg, logger)

	state := "acquired"
	if _, ok := acq.Classifier(); ok {
		logger.Info("Model acquired",
			zap.String("backend", cfg.Backend),
			zap.String("model", cfg.Identifier),
		)
	} else {
		state = string(acq.Reason())
		logger.Warn("Model unavailable, predictions use the lexicon scorer",
			zap.String("backend", cfg.Backend),
			zap.String("model", cfg.Identifier),
			zap.String("reason", state),
			zap.Error(acq.Err()),
		)
	}
	m.ModelState.WithLabelValues(cfg.Backend, state).Set(1)

	return acq
}

func acquire(ctx context.Context, cfg *config.ModelConfig, logger *zap.Logger) service.Acquisition {
	if !cfg.UseExternalModel {
		return service.Unavailable(service.ReasonDisabled, nil)
	}

	var build builder
	switch cfg.Backend {
	case config.BackendHTTP:
		build = buildHTTP
	case config.BackendONNX:
		build = buildONNX
	default:
		return service.Unavailable(service.ReasonLoadFailed, fmt.Errorf("unknown backend %q", cfg.Backend))
	}

	loadCtx, cancel := context.WithTimeout(ctx, cfg.LoadTimeout)
	defer cancel()

	return load(loadCtx, cfg, logger, build)
}

type loadResult struct {
	classifier service.Classifier
	err        error
}

func load(ctx context.Context, cfg *config.ModelConfig, logger *zap.Logger, build builder) service.Acquisition {
	done := make(chan loadResult, 1)
	go func() {
		c, err := build(cfg, logger)
		if err == nil {
			err = probe(ctx, c)
			if err != nil {
				_ = c.Close()
				c = nil
			}
		}
		done <- loadResult{classifier: c, err: err}
	}()

	select {
	case res := <-done:
		return classify(ctx, res)
	case <-ctx.Done():
		// a build that finishes late must still be released
		go func() {
			if res := <-done; res.classifier != nil {
				_ = res.classifier.Close()
			}
		}()
		return service.Unavailable(service.ReasonTimeout, fmt.Errorf("model load: %w", ctx.Err()))
	}
}

// classify turns a load result into an acquisition outcome
func classify(ctx context.Context, res loadResult) service.Acquisition {
	if res.err == nil {
		return service.Acquired(res.classifier)
	}
	if isTimeout(ctx, res.err) {
		return service.Unavailable(service.ReasonTimeout, res.err)
	}
	if errors.Is(res.err, onnx.ErrDependencyMissing) {
		return service.Unavailable(service.ReasonDependencyMissing, res.err)
	}
	return service.Unavailable(service.ReasonLoadFailed, res.err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// probe runs one classification and checks the answer looks like a
// probability distribution over at least two classes. The class count is not
// pinned: label_mapping folds two-class and five-class outputs onto the
// canonical labels.
func probe(ctx context.Context, c service.Classifier) error {
	scores, err := c.ClassifyAll(ctx, probeText)
	if err != nil {
		return fmt.Errorf("warm-up classification: %w", err)
	}
	if len(scores) < minProbeClasses {
		return fmt.Errorf("warm-up classification returned %d classes, want at least %d", len(scores), minProbeClasses)
	}
	for _, s := range scores {
		if s.Score < 0 || s.Score > 1 {
			return fmt.Errorf("warm-up score %v for %q is outside [0,1]", s.Score, s.Label)
		}
	}
	return nil
}

func buildHTTP(cfg *config.ModelConfig, logger *zap.Logger) (service.Classifier, error) {
	c := client.NewInferenceClient(client.ClientConfig{
		BaseURL: cfg.HTTP.BaseURL,
		ModelID: cfg.Identifier,
		Token:   cfg.HTTP.Token,
		Timeout: cfg.HTTP.Timeout,
	}, logger)
	return client.NewInferenceClassifier(c), nil
}

func buildONNX(cfg *config.ModelConfig, _ *zap.Logger) (service.Classifier, error) {
	return onnx.New(onnx.Config{
		ModelID:       cfg.Identifier,
		LibraryPath:   cfg.ONNX.LibraryPath,
		ModelPath:     cfg.ONNX.ModelPath,
		TokenizerPath: cfg.ONNX.TokenizerPath,
		MaxSeqLen:     cfg.ONNX.MaxSeqLen,
		Labels:        cfg.ONNX.Labels,
	})
}
