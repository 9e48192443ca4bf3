package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	os.Unsetenv("PORT")
	os.Unsetenv("API_KEYS")
	os.Unsetenv("FFMPEG_SERVICE_URL")
	os.Unsetenv("FFMPEG_API_KEY")
	os.Unsetenv("YOUTUBE_API_KEY")
	os.Unsetenv("QUEUED_TIMEOUT")
	os.Unsetenv("STUCK_TIMEOUT")
	os.Unsetenv("DB_PATH")
	os.Unsetenv("STORAGE_DIR")
	os.Unsetenv("STORAGE_BASE_URL")
	os.Unsetenv("S3_BUCKET")
	os.Unsetenv("S3_REGION")
	os.Unsetenv("S3_ENDPOINT")
	os.Unsetenv("AWS_ACCESS_KEY_ID")
	os.Unsetenv("AWS_SECRET_ACCESS_KEY")
	os.Unsetenv("LOG_FORMAT")
	os.Unsetenv("LOG_LEVEL")
}

func TestLoad_RequiredVariables(t *testing.T) {
	t.Run("missing FFMPEG_SERVICE_URL returns error", func(t *testing.T) {
		clearEnv()

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFFmpegServiceURLRequired)
	})

	t.Run("all required variables present succeeds", func(t *testing.T) {
		clearEnv()
		t.Setenv("FFMPEG_SERVICE_URL", "http://ffmpeg:3000")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "http://ffmpeg:3000", cfg.FFmpegServiceURL)
	})
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()
	t.Setenv("FFMPEG_SERVICE_URL", "http://ffmpeg:3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 3*time.Minute, cfg.QueuedTimeout)
	assert.Equal(t, 10*time.Minute, cfg.StuckTimeout)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DBPath)
	assert.False(t, cfg.S3Enabled())
	assert.False(t, cfg.MirrorEnabled())
}

func TestLoad_APIKeys(t *testing.T) {
	clearEnv()
	t.Setenv("FFMPEG_SERVICE_URL", "http://ffmpeg:3000")
	t.Setenv("API_KEYS", "key-alice:alice,key-bob:bob")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"key-alice": "alice",
		"key-bob":   "bob",
	}, cfg.APIKeys)
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{FFmpegServiceURL: "http://ffmpeg:3000", APIKeys: map[string]string{"k": "o"}}
	assert.NoError(t, cfg.Validate())

	cfg = &Config{APIKeys: map[string]string{"k": "o"}}
	assert.ErrorIs(t, cfg.Validate(), ErrFFmpegServiceURLRequired)

	cfg = &Config{FFmpegServiceURL: "http://ffmpeg:3000"}
	assert.ErrorIs(t, cfg.Validate(), ErrAPIKeysRequired)
}

func TestConfig_S3Enabled(t *testing.T) {
	cfg := &Config{S3Bucket: "clips", S3Region: "us-east-1"}
	assert.True(t, cfg.S3Enabled())
	assert.True(t, cfg.MirrorEnabled())

	cfg = &Config{S3Bucket: "clips"}
	assert.False(t, cfg.S3Enabled())

	cfg = &Config{StorageDir: "/var/clips"}
	assert.False(t, cfg.S3Enabled())
	assert.True(t, cfg.MirrorEnabled())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
		level  string
	}{
		{"text handler", "text", "debug"},
		{"json handler", "json", "info"},
		{"unknown level defaults to info", "text", "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogFormat: tt.format, LogLevel: tt.level}
			logger := cfg.NewLogger()
			require.NotNil(t, logger)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel(""))
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := &Config{
		Port:             8080,
		FFmpegServiceURL: "http://ffmpeg:3000",
		FFmpegAPIKey:     "super-secret",
		APIKeys:          map[string]string{"secret-key": "alice"},
	}

	s := cfg.String()
	assert.NotContains(t, s, "super-secret")
	assert.NotContains(t, s, "secret-key")
	assert.Contains(t, s, "http://ffmpeg:3000")
}
