package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clipmaster/clipmaster-api/internal/ffmpeg"
	"github.com/clipmaster/clipmaster-api/internal/youtube"
)

// Static errors for the orchestration service.
var (
	// ErrInvalidSourceURL is returned when a source URL is not a valid video URL.
	ErrInvalidSourceURL = errors.New("job: invalid source URL")
	// ErrSourceNotFound is returned when the source video does not exist or is private.
	ErrSourceNotFound = errors.New("job: source video not found or private")
	// ErrGatewaySubmit is returned when the gateway rejected the submission.
	// The failed job is persisted and returned alongside it, so the caller
	// always gets a job id to query.
	ErrGatewaySubmit = errors.New("job: submission to processing service failed")
)

// CreateJobInput is the request to start a new clip generation job.
type CreateJobInput struct {
	SourceURL string
	Options   Options
}

// Service orchestrates the clip generation lifecycle: it validates and
// enriches new jobs, hands them to the processing gateway, and answers status
// and cancellation requests through the reconciler.
type Service struct {
	store      Store
	gateway    ffmpeg.Client
	metadata   youtube.Client
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewService creates the orchestration service.
func NewService(store Store, gateway ffmpeg.Client, metadata youtube.Client, reconciler *Reconciler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		gateway:    gateway,
		metadata:   metadata,
		reconciler: reconciler,
		logger:     logger,
	}
}

// CreateJob validates the source URL, fetches its metadata, persists a queued
// job and submits it to the gateway.
//
// A synchronous gateway completion bypasses the polling path entirely and
// returns a completed job. A gateway failure persists a failed job and
// returns it together with ErrGatewaySubmit: the user always receives a job
// id to query, even for failures.
func (s *Service) CreateJob(ctx context.Context, ownerID string, input CreateJobInput) (*Job, error) {
	videoID, err := youtube.ExtractVideoID(input.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceURL, input.SourceURL)
	}

	video, err := s.metadata.GetVideo(ctx, videoID)
	if err != nil {
		if errors.Is(err, youtube.ErrVideoNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, videoID)
		}
		return nil, fmt.Errorf("fetch video metadata: %w", err)
	}

	j := New(ownerID, input.SourceURL, input.Options, Metadata{
		VideoID:     video.ID,
		Title:       video.Title,
		Description: video.Description,
		Duration:    video.Duration,
		Thumbnails:  video.Thumbnails,
		Views:       video.Views,
		Likes:       video.Likes,
		Channel:     video.Channel,
	})
	if err := s.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	s.logger.Info("job created",
		slog.String("job_id", j.ID),
		slog.String("video_id", video.ID),
		slog.String("owner_id", ownerID),
	)

	out, err := s.gateway.Submit(ctx, input.SourceURL, ffmpeg.SubmitOptions{
		CaptionStyle: string(input.Options.CaptionStyle),
		MusicEnabled: input.Options.MusicEnabled,
		SfxEnabled:   input.Options.SfxEnabled,
		MaxClips:     input.Options.MaxClips,
		MinDuration:  input.Options.MinDuration,
		MaxDuration:  input.Options.MaxDuration,
	})
	if err != nil {
		s.logger.Error("gateway submission failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		// Marking the job failed is best effort. The job row already exists,
		// so even if this write fails the caller still gets its id back.
		failed, ferr := s.failSubmission(ctx, j)
		if ferr != nil {
			s.logger.Error("could not persist failed job",
				slog.String("job_id", j.ID),
				slog.String("error", ferr.Error()),
			)
			failed = j
		}
		return failed, fmt.Errorf("%w: %v", ErrGatewaySubmit, err)
	}

	if out.Kind == ffmpeg.OutcomeCompleted {
		s.logger.Info("gateway completed synchronously", slog.String("job_id", j.ID))
		return s.reconciler.complete(ctx, j, out.Artifacts)
	}

	return s.acceptSubmission(ctx, j, out)
}

// acceptSubmission records the remote linkage for an asynchronous acceptance.
func (s *Service) acceptSubmission(ctx context.Context, j *Job, out ffmpeg.Outcome) (*Job, error) {
	upd := JobUpdate{RemoteJobID: &out.RemoteJobID}
	if step, ok := remoteStageNames[strings.ToLower(out.RemoteStatus)]; ok && canTransition(j.Status, step.Status) {
		upd.Status = &step.Status
		upd.Stage = &step.Stage
	}
	updated, err := s.store.UpdateJob(ctx, j.ID, j.OwnerID, upd)
	if err != nil {
		return nil, fmt.Errorf("persist remote job id: %w", err)
	}

	s.logger.Info("job accepted by gateway",
		slog.String("job_id", j.ID),
		slog.String("remote_job_id", out.RemoteJobID),
	)
	return updated, nil
}

// failSubmission marks a job failed after the gateway rejected it.
func (s *Service) failSubmission(ctx context.Context, j *Job) (*Job, error) {
	status := StatusFailed
	stage := "failed"
	msg := "could not reach the processing service. please try again later."
	failed, err := s.store.UpdateJob(ctx, j.ID, j.OwnerID, JobUpdate{
		Status:       &status,
		Stage:        &stage,
		ErrorMessage: &msg,
	})
	if err != nil {
		return nil, fmt.Errorf("persist failed job: %w", err)
	}
	return failed, nil
}

// GetJobStatus reconciles and returns the job.
func (s *Service) GetJobStatus(ctx context.Context, ownerID, jobID string) (*Job, error) {
	return s.reconciler.Reconcile(ctx, jobID, ownerID)
}

// CancelJob cancels a job. Local cancellation comes first and always wins;
// the remote cancel is attempted afterwards and its outcome never surfaces.
// Cancelling a job that is already terminal is a no-op that still succeeds:
// the user's desired end state, "stop this", is already satisfied.
func (s *Service) CancelJob(ctx context.Context, ownerID, jobID string) (*Job, error) {
	j, err := s.store.GetJob(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	if j.IsTerminal() {
		return j, nil
	}

	status := StatusCancelled
	stage := "cancelled by user"
	progress := 0
	cancelled, err := s.store.UpdateJob(ctx, jobID, ownerID, JobUpdate{
		Status:   &status,
		Stage:    &stage,
		Progress: &progress,
	})
	if err != nil {
		return nil, fmt.Errorf("persist cancellation: %w", err)
	}

	if j.RemoteJobID != "" {
		if !s.gateway.Cancel(ctx, j.RemoteJobID) {
			s.logger.Warn("remote cancel failed, local cancellation stands",
				slog.String("job_id", jobID),
				slog.String("remote_job_id", j.RemoteJobID),
			)
		}
	}

	s.logger.Info("job cancelled", slog.String("job_id", jobID))
	return cancelled, nil
}

// ListJobs returns the owner's jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, ownerID string) ([]*Job, error) {
	return s.store.ListJobs(ctx, ownerID)
}

// ListClips returns the owner's clips, newest first.
func (s *Service) ListClips(ctx context.Context, ownerID string) ([]*Clip, error) {
	return s.store.ListClips(ctx, ownerID)
}

// GetMetadata fetches source video metadata without creating a job. Backs the
// pre-flight preview in the client.
func (s *Service) GetMetadata(ctx context.Context, sourceURL string) (*youtube.Video, error) {
	videoID, err := youtube.ExtractVideoID(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceURL, sourceURL)
	}

	video, err := s.metadata.GetVideo(ctx, videoID)
	if err != nil {
		if errors.Is(err, youtube.ErrVideoNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, videoID)
		}
		return nil, fmt.Errorf("fetch video metadata: %w", err)
	}
	return video, nil
}
