// Package bootstrap provides dependency initialization for the clip generation API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clipmaster/clipmaster-api/internal/config"
	"github.com/clipmaster/clipmaster-api/internal/ffmpeg"
	"github.com/clipmaster/clipmaster-api/internal/job"
	"github.com/clipmaster/clipmaster-api/internal/storage"
	"github.com/clipmaster/clipmaster-api/internal/youtube"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	JobService *job.Service
	Store      job.Store
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize FFmpeg gateway client
	gateway, err := ffmpeg.NewClient(cfg.FFmpegServiceURL,
		ffmpeg.WithAPIKey(cfg.FFmpegAPIKey),
		ffmpeg.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create FFmpeg client: %w", err)
	}

	// Initialize YouTube metadata client
	ytOpts := []youtube.ClientOption{youtube.WithLogger(logger)}
	if cfg.YouTubeAPIKey != "" {
		ytOpts = append(ytOpts, youtube.WithAPIKey(cfg.YouTubeAPIKey))
	}
	metadata, err := youtube.NewClient(ytOpts...)
	if err != nil {
		return nil, fmt.Errorf("create YouTube client: %w", err)
	}

	reconcilerOpts := []job.ReconcilerOption{
		job.WithQueuedTimeout(cfg.QueuedTimeout),
		job.WithStuckTimeout(cfg.StuckTimeout),
		job.WithReconcilerLogger(logger),
	}

	if cfg.MirrorEnabled() {
		mirror, err := initMirror(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		reconcilerOpts = append(reconcilerOpts, job.WithMirror(mirror))
	}

	reconciler := job.NewReconciler(store, gateway, reconcilerOpts...)
	svc := job.NewService(store, gateway, metadata, reconciler, logger)

	return &Dependencies{
		JobService: svc,
		Store:      store,
	}, nil
}

// initStore creates the job store from configuration. An empty DB_PATH
// selects the in-memory store, which does not survive restarts.
func initStore(cfg *config.Config, logger *slog.Logger) (job.Store, error) {
	if cfg.DBPath == "" {
		logger.Info("using in-memory job store")
		return job.NewMemoryStore(), nil
	}

	store, err := job.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("create sqlite store: %w", err)
	}
	logger.Info("sqlite job store configured", slog.String("path", cfg.DBPath))
	return store, nil
}

// initMirror creates the artifact mirror backend based on configuration.
func initMirror(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 mirror: %w", err)
		}
		logger.Info("S3 artifact mirror configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocal(cfg.StorageDir, cfg.StorageBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create local mirror: %w", err)
	}
	logger.Info("local artifact mirror configured",
		slog.String("dir", cfg.StorageDir),
	)
	return localStore, nil
}
