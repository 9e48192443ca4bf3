package id

import (
	"strings"
	"testing"
)

func TestNewJobID(t *testing.T) {
	jobID := NewJobID()

	// Check format
	if !strings.HasPrefix(jobID, "job-") {
		t.Errorf("expected ID to start with 'job-', got %s", jobID)
	}

	// Check uniqueness
	if jobID == NewJobID() {
		t.Error("expected different IDs for consecutive calls")
	}
}

func TestNewClipID(t *testing.T) {
	clipID := NewClipID()

	if !strings.HasPrefix(clipID, "clip-") {
		t.Errorf("expected ID to start with 'clip-', got %s", clipID)
	}

	if clipID == NewClipID() {
		t.Error("expected different IDs for consecutive calls")
	}
}

func TestNewJobID_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		jobID := NewJobID()
		if seen[jobID] {
			t.Errorf("duplicate ID generated: %s", jobID)
		}
		seen[jobID] = true
	}
}
