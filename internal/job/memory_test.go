package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func statusPtr(s Status) *Status { return &s }
func strPtr(s string) *string    { return &s }
func intPtr(n int) *int          { return &n }

func newTestJob(owner string) *Job {
	return New(owner, "https://youtu.be/dQw4w9WgXcQ", Options{}, Metadata{VideoID: "dQw4w9WgXcQ", Duration: 600})
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := newTestJob("alice")
	if err := store.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	got, err := store.GetJob(ctx, j.ID, "alice")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.ID != j.ID {
		t.Errorf("expected id %s, got %s", j.ID, got.ID)
	}

	// Returned value is a clone
	got.Status = StatusFailed
	again, _ := store.GetJob(ctx, j.ID, "alice")
	if again.Status != StatusQueued {
		t.Error("mutation of returned job leaked into the store")
	}
}

func TestMemoryStore_GetJob_ForeignOwnerIsNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := newTestJob("alice")
	_ = store.CreateJob(ctx, j)

	if _, err := store.GetJob(ctx, j.ID, "bob"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound for foreign owner, got %v", err)
	}
	if _, err := store.GetJob(ctx, "job-unknown", "alice"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound for unknown id, got %v", err)
	}
}

func TestMemoryStore_ListJobs_NewestFirstAndScoped(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := newTestJob("alice")
	second := newTestJob("alice")
	other := newTestJob("bob")
	_ = store.CreateJob(ctx, first)
	_ = store.CreateJob(ctx, second)
	_ = store.CreateJob(ctx, other)

	jobs, err := store.ListJobs(ctx, "alice")
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != second.ID || jobs[1].ID != first.ID {
		t.Error("expected newest-first ordering")
	}
}

func TestMemoryStore_UpdateJob(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := newTestJob("alice")
	_ = store.CreateJob(ctx, j)

	updated, err := store.UpdateJob(ctx, j.ID, "alice", JobUpdate{
		Status:   statusPtr(StatusDownloading),
		Stage:    strPtr("downloading video"),
		Progress: intPtr(10),
	})
	if err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}
	if updated.Status != StatusDownloading || updated.Progress != 10 {
		t.Errorf("update not applied: %+v", updated)
	}
	if !updated.UpdatedAt.After(j.UpdatedAt) && !updated.UpdatedAt.Equal(j.UpdatedAt) {
		t.Error("expected UpdatedAt to advance")
	}
}

// Terminal status is write-once: an update racing in after cancellation is
// ignored entirely and the stored row returned.
func TestMemoryStore_UpdateJob_TerminalWriteOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := newTestJob("alice")
	_ = store.CreateJob(ctx, j)

	if _, err := store.UpdateJob(ctx, j.ID, "alice", JobUpdate{Status: statusPtr(StatusCancelled)}); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	// Stale reconciliation write: must not take effect.
	got, err := store.UpdateJob(ctx, j.ID, "alice", JobUpdate{
		Status:   statusPtr(StatusDownloading),
		Progress: intPtr(50),
	})
	if err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("terminal status overwritten: got %s", got.Status)
	}
	if got.Progress == 50 {
		t.Error("progress from ignored update leaked through")
	}
}

func TestMemoryStore_UpdateJob_RemoteJobIDSetOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := newTestJob("alice")
	_ = store.CreateJob(ctx, j)

	_, _ = store.UpdateJob(ctx, j.ID, "alice", JobUpdate{RemoteJobID: strPtr("remote-1")})
	got, err := store.UpdateJob(ctx, j.ID, "alice", JobUpdate{RemoteJobID: strPtr("remote-2")})
	if err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}
	if got.RemoteJobID != "remote-1" {
		t.Errorf("remote job id changed after first set: got %s", got.RemoteJobID)
	}
}

func TestMemoryStore_UpdateJob_ConcurrentWritersLinearize(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	j := newTestJob("alice")
	_ = store.CreateJob(ctx, j)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n == 10 {
				_, _ = store.UpdateJob(ctx, j.ID, "alice", JobUpdate{Status: statusPtr(StatusCancelled)})
				return
			}
			_, _ = store.UpdateJob(ctx, j.ID, "alice", JobUpdate{Progress: intPtr(n)})
		}(i)
	}
	wg.Wait()

	got, _ := store.GetJob(ctx, j.ID, "alice")
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled to win, got %s", got.Status)
	}
}

func TestMemoryStore_Clips(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now().UTC()
	older := &Clip{ID: "clip-1", JobID: "job-1", OwnerID: "alice", CreatedAt: now.Add(-time.Minute)}
	newer := &Clip{ID: "clip-2", JobID: "job-1", OwnerID: "alice", CreatedAt: now}
	foreign := &Clip{ID: "clip-3", JobID: "job-2", OwnerID: "bob", CreatedAt: now}

	for _, c := range []*Clip{older, newer, foreign} {
		if err := store.CreateClip(ctx, c); err != nil {
			t.Fatalf("CreateClip() error = %v", err)
		}
	}

	clips, err := store.ListClips(ctx, "alice")
	if err != nil {
		t.Fatalf("ListClips() error = %v", err)
	}
	if len(clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(clips))
	}
	if clips[0].ID != "clip-2" {
		t.Error("expected newest-first ordering")
	}
}
