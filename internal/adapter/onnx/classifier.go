// Package onnx runs a sequence-classification model in process with ONNX
// Runtime. The model is expected to take input_ids and attention_mask and to
// produce a single logits row per input.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/service"
)

// ErrDependencyMissing is returned when the runtime library, the model or the
// tokenizer cannot be found
var ErrDependencyMissing = errors.New("onnx dependency missing")

var (
	inputNames  = []string{"input_ids", "attention_mask"}
	outputNames = []string{"logits"}
)

// environment is process wide in ONNX Runtime
var envMu sync.Mutex

// Config configures a Classifier
type Config struct {
	ModelID       string
	LibraryPath   string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
	// Labels are the raw class names in logit order (id2label)
	Labels []string
}

// Classifier is an in-process ONNX text classifier
type Classifier struct {
	cfg     Config
	session *ort.DynamicAdvancedSession

	// the tokenizer keeps internal buffers
	mu sync.Mutex
	tk *tokenizer.Tokenizer
}

var _ service.Classifier = (*Classifier)(nil)

// New loads the tokenizer and creates an inference session
func New(cfg Config) (*Classifier, error) {
	if len(cfg.Labels) == 0 {
		return nil, errors.New("no labels configured")
	}
	if cfg.ModelID == "" {
		cfg.ModelID = cfg.ModelPath
	}
	for _, path := range []string{cfg.ModelPath, cfg.TokenizerPath, cfg.LibraryPath} {
		if err := checkFile(path); err != nil {
			return nil, err
		}
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Classifier{cfg: cfg, session: session, tk: tk}, nil
}

func checkFile(path string) error {
	// an empty library path lets the runtime search the system default
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyMissing, err)
	}
	return nil
}

func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("%w: initialize onnxruntime: %v", ErrDependencyMissing, err)
	}
	return nil
}

// ModelID returns the configured model identifier
func (c *Classifier) ModelID() string {
	return c.cfg.ModelID
}

// Classify returns the top scoring class
func (c *Classifier) Classify(ctx context.Context, text string) (*service.RawScore, error) {
	scores, err := c.ClassifyAll(ctx, text)
	if err != nil {
		return nil, err
	}
	return service.TopScore(scores)
}

// ClassifyAll returns the softmax probability of every class in label order
func (c *Classifier) ClassifyAll(ctx context.Context, text string) ([]service.RawScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask, err := c.encode(text)
	if err != nil {
		return nil, err
	}

	logits, err := c.run(ids, mask)
	if err != nil {
		return nil, err
	}
	if len(logits) != len(c.cfg.Labels) {
		return nil, fmt.Errorf("model returned %d logits for %d labels", len(logits), len(c.cfg.Labels))
	}

	probs := Softmax(logits)
	scores := make([]service.RawScore, len(probs))
	for i, p := range probs {
		scores[i] = service.RawScore{Label: c.cfg.Labels[i], Score: p}
	}
	return scores, nil
}

func (c *Classifier) encode(text string) (ids, mask []int64, err error) {
	c.mu.Lock()
	enc, err := c.tk.EncodeSingle(text, true)
	c.mu.Unlock()
	if err != nil {
		return nil, nil, fmt.Errorf("tokenize: %w", err)
	}

	ids = toInt64(enc.Ids)
	mask = toInt64(enc.AttentionMask)
	if len(mask) != len(ids) {
		mask = make([]int64, len(ids))
		for i := range mask {
			mask[i] = 1
		}
	}
	return Truncate(ids, c.cfg.MaxSeqLen), Truncate(mask, c.cfg.MaxSeqLen), nil
}

func (c *Classifier) run(ids, mask []int64) ([]float32, error) {
	shape := ort.NewShape(1, int64(len(ids)))

	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(c.cfg.Labels))))
	if err != nil {
		return nil, fmt.Errorf("logits tensor: %w", err)
	}
	defer out.Destroy()

	if err := c.session.Run([]ort.Value{idsTensor, maskTensor}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}

	logits := make([]float32, len(out.GetData()))
	copy(logits, out.GetData())
	return logits, nil
}

// Close releases the session
func (c *Classifier) Close() error {
	if c == nil || c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	return err
}

// Truncate keeps at most maxLen tokens. The final token is preserved so the
// end-of-sequence marker survives.
func Truncate(tokens []int64, maxLen int) []int64 {
	if maxLen <= 0 || len(tokens) <= maxLen {
		return tokens
	}
	out := make([]int64, maxLen)
	copy(out, tokens[:maxLen-1])
	out[maxLen-1] = tokens[len(tokens)-1]
	return out
}

// Softmax converts logits to probabilities
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	peak := float64(logits[0])
	for _, l := range logits[1:] {
		peak = math.Max(peak, float64(l))
	}

	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(float64(l) - peak)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func toInt64(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}
