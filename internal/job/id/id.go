// Package id provides unique identifier generation for jobs and clips.
package id

import (
	"github.com/google/uuid"
)

// NewJobID creates a new unique job ID.
// Format: job-<uuid>
func NewJobID() string {
	return "job-" + uuid.NewString()
}

// NewClipID creates a new unique clip ID.
// Format: clip-<uuid>
func NewClipID() string {
	return "clip-" + uuid.NewString()
}
