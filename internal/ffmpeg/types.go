// Package ffmpeg provides an HTTP client for the external FFmpeg processing
// service. The service's response contract is not uniform: it may answer a
// submission synchronously with an embedded result payload, or asynchronously
// with a remote job id under a different schema using either camelCase or
// snake_case field names. The client normalizes every response into a single
// Outcome union at this boundary so nothing upstream ever inspects raw shapes.
package ffmpeg

import (
	"encoding/json"
)

// OutcomeKind tags the Outcome union.
type OutcomeKind string

const (
	// OutcomeCompleted means the service already finished and returned artifacts.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeAccepted means the service accepted the work for asynchronous
	// processing and it must be polled.
	OutcomeAccepted OutcomeKind = "accepted"
)

// ArtifactKind distinguishes produced artifact types.
type ArtifactKind string

const (
	ArtifactVideo      ArtifactKind = "video"
	ArtifactScreenshot ArtifactKind = "screenshot"
)

// Artifact is one output file produced by the processing service.
type Artifact struct {
	// Name is a display name for the artifact.
	Name string
	// URL is the absolute location of the artifact. Relative URLs in
	// responses are resolved against the service base URL.
	URL string
	// Kind is the artifact type.
	Kind ArtifactKind
	// Timestamp is the source-video offset in seconds, for screenshots.
	Timestamp float64
	// Size is the file size in bytes when reported.
	Size int64
}

// Outcome is the normalized result of a submit or status call.
// Exactly one of the two shapes is populated, selected by Kind.
type Outcome struct {
	Kind OutcomeKind

	// Completed
	Artifacts []Artifact

	// Accepted
	RemoteJobID  string
	RemoteStatus string
	RemoteStage  string
	Progress     int
}

// SubmitOptions is the clip generation configuration forwarded to the service.
type SubmitOptions struct {
	CaptionStyle string
	MusicEnabled bool
	SfxEnabled   bool
	MaxClips     int
	MinDuration  int
	MaxDuration  int
}

// submitRequest is the request body for the service's /process endpoint.
type submitRequest struct {
	MediaURL        string        `json:"media_url"`
	ExtractInfo     bool          `json:"extract_info"`
	TakeScreenshots bool          `json:"take_screenshots"`
	ScreenshotCount int           `json:"screenshot_count"`
	ConvertFormat   string        `json:"convert_format"`
	Options         submitOptions `json:"options"`
}

type submitOptions struct {
	Captions    string `json:"captions,omitempty"`
	Music       bool   `json:"music"`
	Sfx         bool   `json:"sfx"`
	MaxClips    int    `json:"max_clips,omitempty"`
	MinDuration int    `json:"min_duration,omitempty"`
	MaxDuration int    `json:"max_duration,omitempty"`
}

// infoRequest is the request body for the service's /info and /cancel endpoints.
type infoRequest struct {
	JobID string `json:"job_id"`
}

// processResponse covers both response schemas the service emits. Synchronous
// completions carry Code and Data; asynchronous acceptances carry a job id and
// status token in either naming convention.
type processResponse struct {
	Code *int         `json:"code"`
	Data *processData `json:"data"`

	JobID      string `json:"jobId"`
	JobIDSnake string `json:"job_id"`
	Status     string `json:"status"`
	State      string `json:"state"`
	Stage      string `json:"stage"`

	Progress *float64 `json:"progress"`
	Error    string   `json:"error"`
}

// remoteJobID coalesces the camelCase and snake_case job id fields.
func (r *processResponse) remoteJobID() string {
	if r.JobID != "" {
		return r.JobID
	}
	return r.JobIDSnake
}

// remoteStatus coalesces the status and state fields.
func (r *processResponse) remoteStatus() string {
	if r.Status != "" {
		return r.Status
	}
	return r.State
}

// progress returns the reported progress clamped to [0,100], or 0.
func (r *processResponse) progress() int {
	if r.Progress == nil {
		return 0
	}
	p := int(*r.Progress)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

type processData struct {
	Conversion  *conversion  `json:"conversion"`
	Screenshots []screenshot `json:"screenshots"`
}

type conversion struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// screenshot accepts both the bare-string and the object form the service has
// been observed to emit.
type screenshot struct {
	URL       string  `json:"url"`
	Timestamp float64 `json:"timestamp"`
}

func (s *screenshot) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		s.URL = plain
		return nil
	}
	type alias screenshot
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = screenshot(obj)
	return nil
}

// terminalStatusTokens are remote status values that mean the work is done
// even when no artifact is attached.
var terminalStatusTokens = map[string]bool{
	"completed": true,
	"complete":  true,
	"finished":  true,
	"done":      true,
}
