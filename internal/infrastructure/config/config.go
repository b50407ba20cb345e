package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/ressKim-io/trilingual-sentiment/internal/domain/entity"
)

// EnvPrefix prefixes every environment override, e.g. SENTIMENT_SERVER_PORT
const EnvPrefix = "SENTIMENT"

// Backends understood by the model loader
const (
	BackendHTTP = "http"
	BackendONNX = "onnx"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig
	Model     ModelConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	RateLimit RateLimitConfig

	// Issues lists fields that were invalid and fell back to their defaults
	Issues []string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string
	Port int
	Mode string
}

// ModelConfig holds classifier settings
type ModelConfig struct {
	Identifier       string
	UseExternalModel bool
	LabelMapping     LabelMapping
	Backend          string
	LoadTimeout      time.Duration
	PredictTimeout   time.Duration
	HTTP             InferenceConfig
	ONNX             ONNXConfig
}

// InferenceConfig holds settings for a remote inference endpoint
type InferenceConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// ONNXConfig holds settings for in-process inference
type ONNXConfig struct {
	LibraryPath   string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
	Labels        []string
}

// DatabaseConfig holds PostgreSQL settings for prediction history
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// LabelMapping translates raw model labels to canonical labels.
// Keys are case-folded, so lookups ignore case.
type LabelMapping map[string]entity.Label

// DefaultLabelMapping covers models that only emit LABEL_<n> names
func DefaultLabelMapping() LabelMapping {
	return LabelMapping{
		"label_0": entity.LabelNegative,
		"label_1": entity.LabelNeutral,
		"label_2": entity.LabelPositive,
	}
}

// Lookup returns the canonical label for a raw label
func (m LabelMapping) Lookup(raw string) (entity.Label, bool) {
	l, ok := m[entity.Fold(raw)]
	return l, ok
}

var defaults = map[string]any{
	"server.host": "0.0.0.0",
	"server.port": 8080,
	"server.mode": "release",

	"model.model_identifier":   "cardiffnlp/twitter-xlm-roberta-base-sentiment",
	"model.use_external_model": true,
	"model.label_mapping": map[string]any{
		"LABEL_0": "negative",
		"LABEL_1": "neutral",
		"LABEL_2": "positive",
	},
	"model.backend":             BackendHTTP,
	"model.load_timeout":        "30s",
	"model.predict_timeout":     "10s",
	"model.http.base_url":       "https://api-inference.huggingface.co",
	"model.http.token":          "",
	"model.http.timeout":        "10s",
	"model.onnx.library_path":   "",
	"model.onnx.model_path":     "./models/trilingual-sentiment/model.onnx",
	"model.onnx.tokenizer_path": "./models/trilingual-sentiment/tokenizer.json",
	"model.onnx.max_seq_len":    256,
	"model.onnx.labels":         []string{"LABEL_0", "LABEL_1", "LABEL_2"},

	"database.enabled":  false,
	"database.host":     "localhost",
	"database.port":     5432,
	"database.user":     "sentiment",
	"database.password": "sentiment",
	"database.dbname":   "sentiment",
	"database.sslmode":  "disable",

	"redis.enabled":  false,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"log.level":  "info",
	"log.format": "json",

	"rate_limit.enabled":             true,
	"rate_limit.requests_per_minute": 60,
	"rate_limit.burst":               10,
}

// Load reads config.{yaml,json} (or the file named by SENTIMENT_CONFIG) and
// environment overrides on top of defaults. It never fails: an unreadable
// file is ignored and every invalid field falls back to its own default.
func Load() *Config {
	return LoadFile(os.Getenv(EnvPrefix + "_CONFIG"))
}

// LoadFile is Load with an explicit config file path. An empty path searches
// the working directory and ./config.
func LoadFile(path string) *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	r := &reader{v: v}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			r.issue("config file ignored: %v", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: r.str("server.host"),
			Port: r.port("server.port"),
			Mode: r.oneOf("server.mode", "debug", "release", "test"),
		},
		Model: ModelConfig{
			Identifier:       r.nonEmpty("model.model_identifier"),
			UseExternalModel: r.boolean("model.use_external_model"),
			LabelMapping:     r.labelMapping("model.label_mapping"),
			Backend:          r.oneOf("model.backend", BackendHTTP, BackendONNX),
			LoadTimeout:      r.duration("model.load_timeout"),
			PredictTimeout:   r.duration("model.predict_timeout"),
			HTTP: InferenceConfig{
				BaseURL: strings.TrimRight(r.nonEmpty("model.http.base_url"), "/"),
				Token:   r.str("model.http.token"),
				Timeout: r.duration("model.http.timeout"),
			},
			ONNX: ONNXConfig{
				LibraryPath:   r.str("model.onnx.library_path"),
				ModelPath:     r.str("model.onnx.model_path"),
				TokenizerPath: r.str("model.onnx.tokenizer_path"),
				MaxSeqLen:     r.positive("model.onnx.max_seq_len"),
				Labels:        r.labels("model.onnx.labels"),
			},
		},
		Database: DatabaseConfig{
			Enabled:  r.boolean("database.enabled"),
			Host:     r.str("database.host"),
			Port:     r.port("database.port"),
			User:     r.str("database.user"),
			Password: r.str("database.password"),
			DBName:   r.str("database.dbname"),
			SSLMode:  r.str("database.sslmode"),
		},
		Redis: RedisConfig{
			Enabled:  r.boolean("redis.enabled"),
			Host:     r.str("redis.host"),
			Port:     r.port("redis.port"),
			Password: r.str("redis.password"),
			DB:       r.integer("redis.db"),
		},
		Log: LogConfig{
			Level:  r.oneOf("log.level", "debug", "info", "warn", "error"),
			Format: r.oneOf("log.format", "json", "console"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           r.boolean("rate_limit.enabled"),
			RequestsPerMinute: r.positive("rate_limit.requests_per_minute"),
			Burst:             r.positive("rate_limit.burst"),
		},
	}
	cfg.Issues = r.issues
	return cfg
}

// reader reads typed values, replacing each invalid one with its default
type reader struct {
	v      *viper.Viper
	issues []string
}

func (r *reader) issue(format string, args ...any) {
	r.issues = append(r.issues, fmt.Sprintf(format, args...))
}

func (r *reader) invalid(key string, err error) {
	r.issue("%s: %v, using default %v", key, err, defaults[key])
}

func (r *reader) str(key string) string {
	s, err := cast.ToStringE(r.v.Get(key))
	if err != nil {
		r.invalid(key, err)
		return cast.ToString(defaults[key])
	}
	return strings.TrimSpace(s)
}

func (r *reader) nonEmpty(key string) string {
	s := r.str(key)
	if s == "" {
		r.invalid(key, errors.New("empty value"))
		return cast.ToString(defaults[key])
	}
	return s
}

func (r *reader) oneOf(key string, allowed ...string) string {
	s := strings.ToLower(r.str(key))
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	r.invalid(key, fmt.Errorf("%q is not one of %v", s, allowed))
	return cast.ToString(defaults[key])
}

func (r *reader) boolean(key string) bool {
	b, err := cast.ToBoolE(r.v.Get(key))
	if err != nil {
		r.invalid(key, err)
		return cast.ToBool(defaults[key])
	}
	return b
}

func (r *reader) integer(key string) int {
	n, err := cast.ToIntE(r.v.Get(key))
	if err != nil {
		r.invalid(key, err)
		return cast.ToInt(defaults[key])
	}
	return n
}

func (r *reader) positive(key string) int {
	n := r.integer(key)
	if n <= 0 {
		r.invalid(key, fmt.Errorf("%d is not positive", n))
		return cast.ToInt(defaults[key])
	}
	return n
}

func (r *reader) port(key string) int {
	n := r.integer(key)
	if n < 1 || n > 65535 {
		r.invalid(key, fmt.Errorf("port %d out of range", n))
		return cast.ToInt(defaults[key])
	}
	return n
}

func (r *reader) duration(key string) time.Duration {
	d, err := cast.ToDurationE(r.v.Get(key))
	if err == nil && d <= 0 {
		err = fmt.Errorf("%s is not positive", d)
	}
	if err != nil {
		r.invalid(key, err)
		return cast.ToDuration(defaults[key])
	}
	return d
}

func (r *reader) labels(key string) []string {
	labels, err := cast.ToStringSliceE(r.v.Get(key))
	if err == nil && len(labels) == 0 {
		err = errors.New("no labels")
	}
	if err != nil {
		r.invalid(key, err)
		return cast.ToStringSlice(defaults[key])
	}
	return labels
}

// labelMapping accepts a map (file) or a JSON object string (environment).
// A single unknown target label invalidates the whole mapping.
func (r *reader) labelMapping(key string) LabelMapping {
	raw, err := cast.ToStringMapStringE(r.v.Get(key))
	if err == nil && len(raw) == 0 {
		err = errors.New("empty mapping")
	}
	mapping := make(LabelMapping, len(raw))
	for from, to := range raw {
		if err != nil {
			break
		}
		label, ok := entity.ParseLabel(to)
		if !ok {
			err = fmt.Errorf("%q maps to unknown label %q", from, to)
			break
		}
		mapping[entity.Fold(from)] = label
	}
	if err != nil {
		r.issue("%s: %v, using default mapping", key, err)
		return DefaultLabelMapping()
	}
	return mapping
}
