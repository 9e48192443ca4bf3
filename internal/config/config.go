// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrFFmpegServiceURLRequired is returned when FFMPEG_SERVICE_URL is not set.
	ErrFFmpegServiceURLRequired = errors.New("config: FFMPEG_SERVICE_URL is required")
	// ErrAPIKeysRequired is returned when no API keys are configured.
	ErrAPIKeysRequired = errors.New("config: API_KEYS is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// API keys mapping caller keys to owner ids, e.g. "key1:alice,key2:bob".
	APIKeys map[string]string `env:"API_KEYS, delimiter=\\," json:"-"` // Masked in JSON

	// FFmpeg processing service settings
	FFmpegServiceURL string `env:"FFMPEG_SERVICE_URL, required" json:"ffmpeg_service_url"`
	FFmpegAPIKey     string `env:"FFMPEG_API_KEY" json:"-"` // Masked in JSON

	// YouTube Data API settings
	YouTubeAPIKey string `env:"YOUTUBE_API_KEY" json:"-"` // Masked in JSON

	// Job deadline settings
	QueuedTimeout time.Duration `env:"QUEUED_TIMEOUT, default=3m" json:"queued_timeout"`
	StuckTimeout  time.Duration `env:"STUCK_TIMEOUT, default=10m" json:"stuck_timeout"`

	// Persistence settings. Empty DBPath selects the in-memory store.
	DBPath string `env:"DB_PATH" json:"db_path,omitempty"`

	// Artifact mirror settings
	StorageDir     string `env:"STORAGE_DIR" json:"storage_dir,omitempty"`
	StorageBaseURL string `env:"STORAGE_BASE_URL" json:"storage_base_url,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MirrorEnabled returns true if any artifact mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.S3Enabled() || c.StorageDir != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		if strings.Contains(err.Error(), "FFMPEG_SERVICE_URL") {
			return nil, ErrFFmpegServiceURLRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.FFmpegServiceURL == "" {
		return ErrFFmpegServiceURLRequired
	}
	if len(c.APIKeys) == 0 {
		return ErrAPIKeysRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, FFmpegServiceURL: %s, DBPath: %s, StorageDir: %s, S3Bucket: %s, S3Region: %s, QueuedTimeout: %s, StuckTimeout: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.FFmpegServiceURL,
		c.DBPath,
		c.StorageDir,
		c.S3Bucket,
		c.S3Region,
		c.QueuedTimeout,
		c.StuckTimeout,
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
