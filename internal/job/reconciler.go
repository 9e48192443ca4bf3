package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clipmaster/clipmaster-api/internal/ffmpeg"
	"github.com/clipmaster/clipmaster-api/internal/job/id"
	"github.com/clipmaster/clipmaster-api/internal/storage"
)

// Deadline policy defaults. The gateway has no push channel, so without
// deadlines an orphaned remote job would be polled forever.
const (
	DefaultQueuedTimeout = 3 * time.Minute
	DefaultStuckTimeout  = 10 * time.Minute
)

// Timeout failure messages shown to the user.
const (
	msgQueuedTooLong = "queued too long — try again or use a different video."
	msgStuck         = "taking longer than expected to start."
)

// StageStep maps a minimum remote progress percentage to a pipeline status.
type StageStep struct {
	From   int
	Status Status
	Stage  string
}

// StagePlan buckets a remote progress percentage into the internal stage
// vocabulary when the gateway reports a percentage but no stage name. Steps
// must be ordered by ascending From.
type StagePlan []StageStep

// DefaultStagePlan mirrors the percentages the processing pipeline reports at
// each phase entry.
func DefaultStagePlan() StagePlan {
	return StagePlan{
		{From: 0, Status: StatusQueued, Stage: "queued for processing"},
		{From: 10, Status: StatusDownloading, Stage: "downloading video"},
		{From: 25, Status: StatusTranscribing, Stage: "transcribing audio"},
		{From: 50, Status: StatusDetectingHighlights, Stage: "detecting highlights"},
		{From: 75, Status: StatusCreatingClips, Stage: "creating clips"},
		{From: 85, Status: StatusUploading, Stage: "uploading clips"},
	}
}

// bucket returns the step for a progress percentage.
func (p StagePlan) bucket(progress int) StageStep {
	step := p[0]
	for _, s := range p {
		if progress >= s.From {
			step = s
		}
	}
	return step
}

// remoteStageNames maps explicit gateway stage/status tokens to internal
// statuses. An explicit name wins over percentage bucketing.
var remoteStageNames = map[string]StageStep{
	"queued":               {Status: StatusQueued, Stage: "queued for processing"},
	"pending":              {Status: StatusQueued, Stage: "queued for processing"},
	"downloading":          {Status: StatusDownloading, Stage: "downloading video"},
	"transcribing":         {Status: StatusTranscribing, Stage: "transcribing audio"},
	"detecting":            {Status: StatusDetectingHighlights, Stage: "detecting highlights"},
	"detecting_highlights": {Status: StatusDetectingHighlights, Stage: "detecting highlights"},
	"creating_clips":       {Status: StatusCreatingClips, Stage: "creating clips"},
	"clipping":             {Status: StatusCreatingClips, Stage: "creating clips"},
	"uploading":            {Status: StatusUploading, Stage: "uploading clips"},
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithStagePlan overrides the progress bucketing plan.
func WithStagePlan(p StagePlan) ReconcilerOption {
	return func(r *Reconciler) {
		if len(p) > 0 {
			r.plan = p
		}
	}
}

// WithQueuedTimeout overrides the queued-job deadline.
func WithQueuedTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		r.queuedTimeout = d
	}
}

// WithStuckTimeout overrides the zero-progress deadline.
func WithStuckTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		r.stuckTimeout = d
	}
}

// WithMirror enables best-effort artifact mirroring to the given store.
func WithMirror(m storage.Store) ReconcilerOption {
	return func(r *Reconciler) {
		r.mirror = m
	}
}

// WithReconcilerLogger sets the structured logger.
func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// withClock overrides the time source. Used in tests.
func withClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

// Reconciler drives the job state machine. It is the only component that
// mutates jobs after creation: every status read passes through Reconcile,
// which folds the gateway's view of the remote job into the stored one.
type Reconciler struct {
	store   Store
	gateway ffmpeg.Client
	mirror  storage.Store
	plan    StagePlan

	queuedTimeout time.Duration
	stuckTimeout  time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler over the given store and gateway client.
func NewReconciler(store Store, gateway ffmpeg.Client, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:         store,
		gateway:       gateway,
		plan:          DefaultStagePlan(),
		queuedTimeout: DefaultQueuedTimeout,
		stuckTimeout:  DefaultStuckTimeout,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile loads a job, folds in the remote state when a remote job exists,
// applies the deadline policy, and returns the resulting job.
//
// Terminal jobs are returned unchanged without any remote call. A flaky poll
// (gateway unreachable, malformed response) never fails the job directly; it
// falls through to deadline evaluation so a single bad poll cannot kill a
// long-running job.
func (r *Reconciler) Reconcile(ctx context.Context, jobID, ownerID string) (*Job, error) {
	j, err := r.store.GetJob(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	if j.IsTerminal() {
		return j, nil
	}

	if j.RemoteJobID != "" {
		out, pollErr := r.gateway.PollStatus(ctx, j.RemoteJobID)
		switch {
		case pollErr == nil && out.Kind == ffmpeg.OutcomeCompleted:
			return r.complete(ctx, j, out.Artifacts)
		case pollErr == nil:
			j, err = r.advance(ctx, j, out)
			if err != nil {
				return nil, err
			}
		case errors.Is(pollErr, ffmpeg.ErrGatewayUnavailable), errors.Is(pollErr, ffmpeg.ErrProtocolMismatch):
			r.logger.Warn("status poll failed, deferring to deadline policy",
				slog.String("job_id", j.ID),
				slog.String("error", pollErr.Error()),
			)
		default:
			return nil, pollErr
		}
	}

	return r.evaluateDeadlines(ctx, j)
}

// advance maps an in-progress remote outcome onto the stored job. An explicit
// remote stage name is preferred; otherwise the progress percentage is
// bucketed through the stage plan. Progress never moves backwards while the
// status is unchanged.
func (r *Reconciler) advance(ctx context.Context, j *Job, out ffmpeg.Outcome) (*Job, error) {
	step, ok := remoteStageNames[strings.ToLower(out.RemoteStage)]
	if !ok {
		step, ok = remoteStageNames[strings.ToLower(out.RemoteStatus)]
	}
	if !ok {
		step = r.plan.bucket(out.Progress)
	}

	newStatus := step.Status
	if !canTransition(j.Status, newStatus) {
		// The gateway reported a phase behind what we already recorded.
		// Keep the recorded status; only progress may still move.
		newStatus = j.Status
		step = StageStep{Status: j.Status, Stage: j.Stage}
	}

	progress := out.Progress
	if newStatus == j.Status && progress < j.Progress {
		progress = j.Progress
	}

	if newStatus == j.Status && progress == j.Progress {
		return j, nil
	}

	return r.store.UpdateJob(ctx, j.ID, j.OwnerID, JobUpdate{
		Status:   &newStatus,
		Stage:    &step.Stage,
		Progress: &progress,
	})
}

// complete materializes clips from the artifacts and moves the job to
// completed with progress 100. A completion with no artifacts is a gateway
// that finished without producing anything, which for the user is a failure.
func (r *Reconciler) complete(ctx context.Context, j *Job, artifacts []ffmpeg.Artifact) (*Job, error) {
	clips := r.materializeClips(ctx, j, artifacts)
	if len(clips) == 0 {
		return r.fail(ctx, j, "processing finished without producing any clips.")
	}

	for i := range clips {
		if err := r.store.CreateClip(ctx, &clips[i]); err != nil {
			return nil, fmt.Errorf("persist clip: %w", err)
		}
	}

	status := StatusCompleted
	stage := "completed"
	progress := 100
	return r.store.UpdateJob(ctx, j.ID, j.OwnerID, JobUpdate{
		Status:   &status,
		Stage:    &stage,
		Progress: &progress,
		Clips:    clips,
	})
}

// materializeClips converts gateway artifacts into clip records. Each video
// conversion becomes a clip carrying the screenshots as thumbnails, or the
// screenshots form thumbnail-only clips when no video was produced.
func (r *Reconciler) materializeClips(ctx context.Context, j *Job, artifacts []ffmpeg.Artifact) []Clip {
	now := r.now().UTC()

	var videos, shots []ffmpeg.Artifact
	for _, a := range artifacts {
		if a.Kind == ffmpeg.ArtifactVideo {
			videos = append(videos, a)
		} else {
			shots = append(shots, a)
		}
	}

	var clips []Clip
	for i, v := range videos {
		c := r.newClip(j, i, now)
		c.VideoURL = r.mirrorArtifact(ctx, j, v)
		for _, s := range shots {
			c.ThumbnailURLs = append(c.ThumbnailURLs, r.mirrorArtifact(ctx, j, s))
		}
		clips = append(clips, c)
	}

	if len(videos) == 0 {
		for i, s := range shots {
			c := r.newClip(j, i, now)
			c.StartTime = s.Timestamp
			c.EndTime = clampEnd(s.Timestamp+float64(clipWindow(j.Options)), j)
			c.DurationSeconds = c.EndTime - c.StartTime
			c.ThumbnailURLs = []string{r.mirrorArtifact(ctx, j, s)}
			clips = append(clips, c)
		}
	}

	return clips
}

// newClip builds a ready clip spanning the job's configured duration window,
// clamped to the source video length.
func (r *Reconciler) newClip(j *Job, index int, now time.Time) Clip {
	span := float64(clipWindow(j.Options))
	start := float64(index) * span
	end := clampEnd(start+span, j)
	if end <= start {
		start, end = 0, clampEnd(span, j)
	}

	title := j.Metadata.Title
	if title == "" {
		title = "Clip"
	}

	// A crude prior: earlier highlights score higher. Replaced by the real
	// model score once the gateway reports per-segment results.
	engagement := 0.95 - 0.07*float64(index)
	if engagement < 0.5 {
		engagement = 0.5
	}

	return Clip{
		ID:                  id.NewClipID(),
		JobID:               j.ID,
		OwnerID:             j.OwnerID,
		Title:               fmt.Sprintf("%s — Highlight %d", title, index+1),
		StartTime:           start,
		EndTime:             end,
		DurationSeconds:     end - start,
		PredictedEngagement: engagement,
		Status:              ClipReady,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// clipWindow returns the configured clip length in seconds.
func clipWindow(opts Options) int {
	w := opts.MaxDuration
	if w <= 0 {
		w = 30
	}
	if opts.MinDuration > 0 && w < opts.MinDuration {
		w = opts.MinDuration
	}
	return w
}

// clampEnd keeps a clip end within the source video.
func clampEnd(end float64, j *Job) float64 {
	if d := float64(j.Metadata.Duration); d > 0 && end > d {
		return d
	}
	return end
}

// mirrorArtifact copies a gateway artifact into the configured mirror store
// and returns the mirrored URL. Best effort: on any failure the gateway URL
// is returned unchanged.
func (r *Reconciler) mirrorArtifact(ctx context.Context, j *Job, a ffmpeg.Artifact) string {
	if r.mirror == nil {
		return a.URL
	}

	rc, err := r.gateway.FetchArtifact(ctx, a.URL)
	if err != nil {
		r.logger.Warn("artifact fetch for mirroring failed",
			slog.String("job_id", j.ID),
			slog.String("url", a.URL),
			slog.String("error", err.Error()),
		)
		return a.URL
	}
	defer func() { _ = rc.Close() }()

	key := fmt.Sprintf("%s/%s", j.ID, storage.SafeName(a.URL))
	mirrored, err := r.mirror.Save(ctx, key, rc)
	if err != nil {
		r.logger.Warn("artifact mirroring failed",
			slog.String("job_id", j.ID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return a.URL
	}
	return mirrored
}

// evaluateDeadlines applies the stuck-job policy to a non-terminal job.
// It runs on every status read, including for jobs that never received a
// remote job id, so a submission that half-failed cannot sit queued forever.
func (r *Reconciler) evaluateDeadlines(ctx context.Context, j *Job) (*Job, error) {
	if j.IsTerminal() {
		return j, nil
	}

	age := j.Age(r.now())
	switch {
	case j.Status == StatusQueued && age > r.queuedTimeout:
		r.logger.Info("failing job stuck in queue",
			slog.String("job_id", j.ID),
			slog.Duration("age", age),
		)
		return r.fail(ctx, j, msgQueuedTooLong)
	case j.Status.IsProcessing() && j.Progress == 0 && age > r.stuckTimeout:
		r.logger.Info("failing job with no progress",
			slog.String("job_id", j.ID),
			slog.Duration("age", age),
		)
		return r.fail(ctx, j, msgStuck)
	}
	return j, nil
}

// fail moves a job to failed with the given user-facing message.
func (r *Reconciler) fail(ctx context.Context, j *Job, msg string) (*Job, error) {
	status := StatusFailed
	stage := "failed"
	return r.store.UpdateJob(ctx, j.ID, j.OwnerID, JobUpdate{
		Status:       &status,
		Stage:        &stage,
		ErrorMessage: &msg,
	})
}
