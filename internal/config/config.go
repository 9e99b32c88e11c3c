package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Model backends.
const (
	BackendONNX = "onnx"
	BackendGRPC = "grpc"
)

// History backends.
const (
	HistoryMemory = "memory"
	HistoryRedis  = "redis"
)

// Config holds the runtime settings read from the environment.
type Config struct {
	HTTPAddr string

	ModelBackend         string
	ModelPath            string
	ONNXLibraryPath      string
	ModelInputName       string
	ModelOutputName      string
	ClassifierAddr       string
	ClassifierListenAddr string

	HistoryBackend string
	RedisAddr      string
	HistoryLimit   int

	SessionSecret string
	SessionTTL    time.Duration

	AnalysisDelay   time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

// Load reads the configuration from environment variables, applying defaults
// for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		ModelBackend:         strings.ToLower(getEnv("MODEL_BACKEND", BackendONNX)),
		ModelPath:            getEnv("MODEL_PATH", "models/xception_deepfake.onnx"),
		ONNXLibraryPath:      os.Getenv("ONNXRUNTIME_LIB"),
		ModelInputName:       getEnv("MODEL_INPUT_NAME", "input"),
		ModelOutputName:      getEnv("MODEL_OUTPUT_NAME", "output"),
		ClassifierAddr:       getEnv("CLASSIFIER_ADDR", "classifier:50051"),
		ClassifierListenAddr: os.Getenv("CLASSIFIER_LISTEN_ADDR"),
		HistoryBackend:       strings.ToLower(getEnv("HISTORY_BACKEND", HistoryMemory)),
		RedisAddr:            getEnv("REDIS_ADDR", "redis:6379"),
		SessionSecret:        getEnv("SESSION_SECRET", "dev-secret"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}

	var errs []error
	var err error
	if cfg.HistoryLimit, err = getInt("HISTORY_LIMIT", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.AnalysisDelay, err = getDuration("ANALYSIS_DELAY", 1500*time.Millisecond); err != nil {
		errs = append(errs, err)
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.ModelBackend {
	case BackendONNX:
		if c.ModelPath == "" {
			return errors.New("MODEL_PATH is required for the onnx backend")
		}
	case BackendGRPC:
		if c.ClassifierAddr == "" {
			return errors.New("CLASSIFIER_ADDR is required for the grpc backend")
		}
	default:
		return fmt.Errorf("unknown MODEL_BACKEND %q", c.ModelBackend)
	}

	switch c.HistoryBackend {
	case HistoryMemory, HistoryRedis:
	default:
		return fmt.Errorf("unknown HISTORY_BACKEND %q", c.HistoryBackend)
	}

	if c.HistoryLimit < 0 {
		return fmt.Errorf("HISTORY_LIMIT must be >= 0, got %d", c.HistoryLimit)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.AnalysisDelay < 0 {
		return errors.New("ANALYSIS_DELAY must not be negative")
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		return errors.New("SESSION_SECRET must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
