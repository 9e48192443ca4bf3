package job

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned when a job cannot be found by ID, or when it
// exists but belongs to a different owner. The two cases are deliberately
// indistinguishable so foreign job ids leak nothing.
var ErrJobNotFound = errors.New("job not found")

// JobUpdate is a partial update applied atomically to a job row. Nil fields
// are left untouched.
type JobUpdate struct {
	Status       *Status
	Stage        *string
	Progress     *int
	RemoteJobID  *string
	Clips        []Clip
	ErrorMessage *string
}

// Store defines the persistence port for jobs and clips.
//
// Implementations must uphold two invariants the state machine depends on:
//
//   - Terminal write-once: an update against a job whose stored status is
//     terminal is ignored entirely and the stored row returned unchanged. A
//     reconciliation pass racing a cancellation therefore cannot overwrite
//     the cancelled status with a stale processing one.
//   - RemoteJobID is set at most once: an update carrying a RemoteJobID is
//     applied only if the stored value is empty.
//
// UpdateJob must be atomic per job row so concurrent pollers for the same job
// cannot interleave partial writes.
type Store interface {
	// CreateJob persists a new job.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by id, scoped to the owner.
	// Returns ErrJobNotFound for unknown or foreign ids.
	GetJob(ctx context.Context, id, ownerID string) (*Job, error)

	// ListJobs returns the owner's jobs, newest first.
	ListJobs(ctx context.Context, ownerID string) ([]*Job, error)

	// UpdateJob atomically applies a partial update and returns the resulting
	// row. Returns ErrJobNotFound for unknown or foreign ids.
	UpdateJob(ctx context.Context, id, ownerID string, upd JobUpdate) (*Job, error)

	// CreateClip persists a new clip record.
	CreateClip(ctx context.Context, c *Clip) error

	// ListClips returns the owner's clips, newest first.
	ListClips(ctx context.Context, ownerID string) ([]*Clip, error)
}

// applyUpdate merges upd into a copy of j and returns it. It implements the
// terminal write-once and remote-id set-once rules shared by all Store
// implementations. The bool result reports whether anything was applied.
func applyUpdate(j *Job, upd JobUpdate) (*Job, bool) {
	if j.Status.IsTerminal() {
		return j.Clone(), false
	}

	out := j.Clone()
	if upd.Status != nil {
		out.Status = *upd.Status
	}
	if upd.Stage != nil {
		out.Stage = *upd.Stage
	}
	if upd.Progress != nil {
		out.Progress = *upd.Progress
	}
	if upd.RemoteJobID != nil && out.RemoteJobID == "" {
		out.RemoteJobID = *upd.RemoteJobID
	}
	if upd.Clips != nil {
		out.Clips = make([]Clip, len(upd.Clips))
		for i := range upd.Clips {
			out.Clips[i] = *upd.Clips[i].Clone()
		}
	}
	if upd.ErrorMessage != nil {
		out.ErrorMessage = *upd.ErrorMessage
	}
	out.UpdatedAt = time.Now().UTC()
	return out, true
}
