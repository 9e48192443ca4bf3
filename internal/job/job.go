// Package job provides the Job and Clip aggregates for the clip generation
// pipeline, the job status state machine, the Store port for persistence, and
// the orchestration service that coordinates the FFmpeg gateway, the source
// metadata provider, and the reconciler.
package job

import (
	"errors"
	"time"

	"github.com/clipmaster/clipmaster-api/internal/job/id"
)

// DefaultTTL is how long a job and its artifacts are retained before an
// external sweeper may reclaim them.
const DefaultTTL = 24 * time.Hour

// CaptionStyle selects the burned-in caption look for generated clips.
type CaptionStyle string

const (
	CaptionModern  CaptionStyle = "modern"
	CaptionBold    CaptionStyle = "bold"
	CaptionNeon    CaptionStyle = "neon"
	CaptionClassic CaptionStyle = "classic"
)

// IsValid returns true if the caption style is one of the supported styles.
func (c CaptionStyle) IsValid() bool {
	switch c {
	case CaptionModern, CaptionBold, CaptionNeon, CaptionClassic:
		return true
	default:
		return false
	}
}

// Options is the user-selected clip generation configuration. It is persisted
// on the job and passed through to the processing gateway opaquely.
type Options struct {
	CaptionStyle CaptionStyle `json:"caption_style"`
	MusicEnabled bool         `json:"music_enabled"`
	SfxEnabled   bool         `json:"sfx_enabled"`
	MaxClips     int          `json:"max_clips"`
	MinDuration  int          `json:"min_duration"`
	MaxDuration  int          `json:"max_duration"`
}

// Metadata is descriptive information about the source video, fetched once
// from the source platform when the job is created.
type Metadata struct {
	VideoID     string            `json:"video_id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Duration    int               `json:"duration"` // seconds
	Thumbnails  map[string]string `json:"thumbnails,omitempty"`
	Views       int64             `json:"views,omitempty"`
	Likes       int64             `json:"likes,omitempty"`
	Channel     string            `json:"channel,omitempty"`
}

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job is waiting for the gateway to pick it up.
	StatusQueued Status = "queued"
	// StatusDownloading indicates the gateway is downloading the source video.
	StatusDownloading Status = "downloading"
	// StatusTranscribing indicates the gateway is generating a transcript.
	StatusTranscribing Status = "transcribing"
	// StatusDetectingHighlights indicates highlight moments are being selected.
	StatusDetectingHighlights Status = "detecting_highlights"
	// StatusCreatingClips indicates clip segments are being cut and captioned.
	StatusCreatingClips Status = "creating_clips"
	// StatusUploading indicates finished clips are being uploaded.
	StatusUploading Status = "uploading"
	// StatusCompleted indicates the job finished and clips are available.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the job encountered a terminal error.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the job was cancelled by the user.
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if the status permits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsProcessing returns true for the intermediate states between queued and
// completion, while the gateway is actively working on the job.
func (s Status) IsProcessing() bool {
	switch s {
	case StatusDownloading, StatusTranscribing, StatusDetectingHighlights,
		StatusCreatingClips, StatusUploading:
		return true
	default:
		return false
	}
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed. The pipeline
// may skip forward over stages (the gateway reports phases coarsely), every
// non-terminal state may fail or be cancelled, and terminal states are
// immutable.
var validTransitions = map[Status][]Status{
	StatusQueued:              {StatusDownloading, StatusTranscribing, StatusDetectingHighlights, StatusCreatingClips, StatusUploading, StatusCompleted, StatusFailed, StatusCancelled},
	StatusDownloading:         {StatusTranscribing, StatusDetectingHighlights, StatusCreatingClips, StatusUploading, StatusCompleted, StatusFailed, StatusCancelled},
	StatusTranscribing:        {StatusDetectingHighlights, StatusCreatingClips, StatusUploading, StatusCompleted, StatusFailed, StatusCancelled},
	StatusDetectingHighlights: {StatusCreatingClips, StatusUploading, StatusCompleted, StatusFailed, StatusCancelled},
	StatusCreatingClips:       {StatusUploading, StatusCompleted, StatusFailed, StatusCancelled},
	StatusUploading:           {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:           {},
	StatusFailed:              {},
	StatusCancelled:           {},
}

// canTransition checks if a transition from one status to another is valid.
// Staying in the same non-terminal status is always allowed (a poll that
// reports no phase change is not a transition).
func canTransition(from, to Status) bool {
	if from == to {
		return !from.IsTerminal()
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether a job in status from may move to status to.
func CanTransition(from, to Status) bool {
	return canTransition(from, to)
}

// ClipStatus represents the readiness of a single generated clip. It refines
// the owning job's terminal state: a completed job may still contain clips
// that failed individually.
type ClipStatus string

const (
	ClipProcessing ClipStatus = "processing"
	ClipReady      ClipStatus = "ready"
	ClipFailed     ClipStatus = "failed"
	ClipExpired    ClipStatus = "expired"
)

// Clip represents one generated highlight segment belonging to a Job.
type Clip struct {
	// ID is the unique identifier for this clip.
	ID string `json:"id"`
	// JobID is the owning job.
	JobID string `json:"job_id"`
	// OwnerID is copied from the job for authorization locality.
	OwnerID string `json:"owner_id"`
	// Title is the generated clip title.
	Title string `json:"title"`
	// StartTime and EndTime bound the segment within the source video, in seconds.
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	// DurationSeconds is EndTime - StartTime.
	DurationSeconds float64 `json:"duration_seconds"`
	// PredictedEngagement is a score in [0,1].
	PredictedEngagement float64 `json:"predicted_engagement"`
	// VideoURL points at the rendered clip file.
	VideoURL string `json:"video_url,omitempty"`
	// ThumbnailURLs is an ordered list of still frames.
	ThumbnailURLs []string `json:"thumbnail_urls,omitempty"`
	// SubtitleURLs lists generated subtitle files (vtt, srt).
	SubtitleURLs []string `json:"subtitle_urls,omitempty"`
	// Status is the clip's own readiness state.
	Status ClipStatus `json:"status"`
	// CreatedAt is when the clip record was materialized.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the clip was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// Job represents one user-initiated video-to-clips request and its lifecycle.
// Jobs are request-scoped values: all mutation goes through the Store, which
// owns synchronization, so the aggregate itself carries no lock.
type Job struct {
	// ID is the unique identifier for this job.
	ID string `json:"id"`
	// OwnerID identifies the user who created the job. All reads are scoped to it.
	OwnerID string `json:"owner_id"`
	// SourceURL is the video URL as submitted.
	SourceURL string `json:"source_url"`
	// VideoID is the platform video identifier extracted from SourceURL.
	VideoID string `json:"video_id"`
	// RemoteJobID links to the gateway's job. Set at most once, when the
	// gateway accepts the submission asynchronously, and never changed.
	RemoteJobID string `json:"remote_job_id,omitempty"`
	// Status is the canonical lifecycle state.
	Status Status `json:"status"`
	// Stage is a human-readable sub-label for the current status. Not authoritative.
	Stage string `json:"stage"`
	// Progress is the completion percentage (0-100), monotonically
	// non-decreasing while the status is unchanged.
	Progress int `json:"progress"`
	// Options is the clip generation configuration.
	Options Options `json:"options"`
	// Metadata is the source video description.
	Metadata Metadata `json:"metadata"`
	// Clips holds the completed clip descriptors, populated only at completion.
	Clips []Clip `json:"clips,omitempty"`
	// ErrorMessage is set only on failure.
	ErrorMessage string `json:"error_message,omitempty"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time `json:"updated_at"`
	// ExpiresAt is when the job becomes eligible for cleanup by an external
	// sweeper. Jobs are never deleted here.
	ExpiresAt time.Time `json:"expires_at"`
}

// New creates a queued Job with a generated ID for the given owner and source.
func New(ownerID, sourceURL string, opts Options, meta Metadata) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id.NewJobID(),
		OwnerID:   ownerID,
		SourceURL: sourceURL,
		VideoID:   meta.VideoID,
		Status:    StatusQueued,
		Stage:     "queued for processing",
		Options:   opts,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(DefaultTTL),
	}
}

// IsTerminal returns true if the job reached a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Age returns how long ago the job was created.
func (j *Job) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}

// Clone creates a deep copy of the job for safe hand-off across goroutines.
func (j *Job) Clone() *Job {
	out := *j
	if j.Clips != nil {
		out.Clips = make([]Clip, len(j.Clips))
		for i := range j.Clips {
			out.Clips[i] = *j.Clips[i].Clone()
		}
	}
	if j.Metadata.Thumbnails != nil {
		out.Metadata.Thumbnails = make(map[string]string, len(j.Metadata.Thumbnails))
		for k, v := range j.Metadata.Thumbnails {
			out.Metadata.Thumbnails[k] = v
		}
	}
	return &out
}

// Clone creates a deep copy of the clip.
func (c *Clip) Clone() *Clip {
	out := *c
	if c.ThumbnailURLs != nil {
		out.ThumbnailURLs = append([]string(nil), c.ThumbnailURLs...)
	}
	if c.SubtitleURLs != nil {
		out.SubtitleURLs = append([]string(nil), c.SubtitleURLs...)
	}
	return &out
}
