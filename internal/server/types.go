// Package server provides the HTTP server for the clip generation API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"github.com/clipmaster/clipmaster-api/internal/job"
	"github.com/clipmaster/clipmaster-api/internal/youtube"
)

// OptionsRequest is the clip generation configuration in API requests.
type OptionsRequest struct {
	// CaptionStyle selects the burned-in caption look.
	CaptionStyle string `json:"captionStyle" validate:"omitempty,oneof=modern bold neon classic"`
	// MusicEnabled adds background music to generated clips.
	MusicEnabled bool `json:"musicEnabled"`
	// SfxEnabled adds sound effects to generated clips.
	SfxEnabled bool `json:"sfxEnabled"`
	// MaxClips bounds how many clips are generated.
	MaxClips int `json:"maxClips" validate:"omitempty,min=1,max=10"`
	// MinDuration is the minimum clip length in seconds.
	MinDuration int `json:"minDuration" validate:"omitempty,min=5,max=60"`
	// MaxDuration is the maximum clip length in seconds.
	MaxDuration int `json:"maxDuration" validate:"omitempty,min=5,max=180,gtefield=MinDuration"`
}

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// SourceURL is the YouTube video URL to generate clips from.
	SourceURL string `json:"sourceUrl" validate:"required,url"`
	// Options is the clip generation configuration.
	Options OptionsRequest `json:"options"`
}

// ClipResponse is one generated clip in API responses.
type ClipResponse struct {
	ID                  string   `json:"id"`
	JobID               string   `json:"jobId"`
	Title               string   `json:"title"`
	StartTime           float64  `json:"startTime"`
	EndTime             float64  `json:"endTime"`
	DurationSeconds     float64  `json:"durationSeconds"`
	PredictedEngagement float64  `json:"predictedEngagement"`
	VideoURL            string   `json:"videoUrl,omitempty"`
	ThumbnailURLs       []string `json:"thumbnailUrls,omitempty"`
	SubtitleURLs        []string `json:"subtitleUrls,omitempty"`
	Status              string   `json:"status"`
}

// MetadataResponse is the source video description in API responses.
type MetadataResponse struct {
	VideoID     string            `json:"videoId"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Duration    int               `json:"duration"`
	Thumbnails  map[string]string `json:"thumbnails,omitempty"`
	Views       int64             `json:"views,omitempty"`
	Likes       int64             `json:"likes,omitempty"`
	Channel     string            `json:"channel,omitempty"`
}

// JobResponse is the full job projection returned by the API.
type JobResponse struct {
	JobID    string            `json:"jobId"`
	Status   string            `json:"status"`
	Stage    string            `json:"stage,omitempty"`
	Progress int               `json:"progress"`
	Metadata *MetadataResponse `json:"metadata,omitempty"`
	Clips    []ClipResponse    `json:"clips,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// JobListResponse is the HTTP response for listing jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ClipListResponse is the HTTP response for listing clips.
type ClipListResponse struct {
	Clips []ClipResponse `json:"clips"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
	// JobID is set when a job was persisted despite the failure, so the
	// caller can still query it.
	JobID string `json:"jobId,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

// toJobResponse projects a job onto the API shape.
func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		JobID:    j.ID,
		Status:   string(j.Status),
		Stage:    j.Stage,
		Progress: j.Progress,
		Error:    j.ErrorMessage,
	}
	if j.Metadata.VideoID != "" {
		m := toMetadataResponse(j.Metadata)
		resp.Metadata = &m
	}
	for i := range j.Clips {
		resp.Clips = append(resp.Clips, toClipResponse(&j.Clips[i]))
	}
	return resp
}

func toClipResponse(c *job.Clip) ClipResponse {
	return ClipResponse{
		ID:                  c.ID,
		JobID:               c.JobID,
		Title:               c.Title,
		StartTime:           c.StartTime,
		EndTime:             c.EndTime,
		DurationSeconds:     c.DurationSeconds,
		PredictedEngagement: c.PredictedEngagement,
		VideoURL:            c.VideoURL,
		ThumbnailURLs:       c.ThumbnailURLs,
		SubtitleURLs:        c.SubtitleURLs,
		Status:              string(c.Status),
	}
}

func toMetadataResponse(m job.Metadata) MetadataResponse {
	return MetadataResponse{
		VideoID:     m.VideoID,
		Title:       m.Title,
		Description: m.Description,
		Duration:    m.Duration,
		Thumbnails:  m.Thumbnails,
		Views:       m.Views,
		Likes:       m.Likes,
		Channel:     m.Channel,
	}
}

func videoToMetadataResponse(v *youtube.Video) MetadataResponse {
	return MetadataResponse{
		VideoID:     v.ID,
		Title:       v.Title,
		Description: v.Description,
		Duration:    v.Duration,
		Thumbnails:  v.Thumbnails,
		Views:       v.Views,
		Likes:       v.Likes,
		Channel:     v.Channel,
	}
}
