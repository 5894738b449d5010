// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Result store backends.
const (
	ResultStoreMemory = "memory"
	ResultStoreS3     = "s3"
)

// Static errors for configuration validation.
var (
	// ErrInvalidResultStore is returned when RESULT_STORE is not memory or s3.
	ErrInvalidResultStore = errors.New("config: RESULT_STORE must be memory or s3")
	// ErrS3BucketRequired is returned when the s3 result store has no bucket.
	ErrS3BucketRequired = errors.New("config: S3_BUCKET is required when RESULT_STORE=s3")
	// ErrS3RegionRequired is returned when the s3 result store has no region.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when RESULT_STORE=s3")
	// ErrInvalidLogBufferSize is returned when LOG_BUFFER_SIZE is not positive.
	ErrInvalidLogBufferSize = errors.New("config: LOG_BUFFER_SIZE must be positive")
	// ErrInvalidProgressInterval is returned when PROGRESS_INTERVAL_MS is not positive.
	ErrInvalidProgressInterval = errors.New("config: PROGRESS_INTERVAL_MS must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int   `env:"PORT, default=8080" json:"port"`
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES, default=2147483648" json:"max_upload_bytes"`

	// Engine settings
	FFmpegPath          string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	SandboxDir          string `env:"SANDBOX_DIR, default=/tmp/mediatools/sandbox" json:"sandbox_dir"`
	EngineOrigin        string `env:"ENGINE_ORIGIN, default=http://localhost:8080" json:"engine_origin"`
	EngineSecureContext bool   `env:"ENGINE_SECURE_CONTEXT, default=false" json:"engine_secure_context"`
	ProgressIntervalMs  int    `env:"PROGRESS_INTERVAL_MS, default=500" json:"progress_interval_ms"`
	LogBufferSize       int    `env:"LOG_BUFFER_SIZE, default=50" json:"log_buffer_size"`

	// Result settings
	ResultStore        string `env:"RESULT_STORE, default=memory" json:"result_store"` // "memory" or "s3"
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX, default=results/" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if results are published to S3.
func (c *Config) S3Enabled() bool {
	return strings.ToLower(c.ResultStore) == ResultStoreS3
}

// ProgressInterval returns the progress sampling interval.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch strings.ToLower(c.ResultStore) {
	case ResultStoreMemory:
	case ResultStoreS3:
		if c.S3Bucket == "" {
			return ErrS3BucketRequired
		}
		if c.S3Region == "" {
			return ErrS3RegionRequired
		}
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidResultStore, c.ResultStore)
	}
	if c.LogBufferSize <= 0 {
		return ErrInvalidLogBufferSize
	}
	if c.ProgressIntervalMs <= 0 {
		return ErrInvalidProgressInterval
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, FFmpegPath: %s, SandboxDir: %s, EngineOrigin: %s, ProgressIntervalMs: %d, LogBufferSize: %d, ResultStore: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.FFmpegPath,
		c.SandboxDir,
		c.EngineOrigin,
		c.ProgressIntervalMs,
		c.LogBufferSize,
		c.ResultStore,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
