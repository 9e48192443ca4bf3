package job

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	j := newTestJob("alice")
	j.Metadata.Thumbnails = map[string]string{"default": "https://example.com/t.jpg"}
	j.Options = Options{CaptionStyle: CaptionBold, MaxClips: 3}
	if err := store.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	got, err := store.GetJob(ctx, j.ID, "alice")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.ID != j.ID || got.SourceURL != j.SourceURL {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Options.CaptionStyle != CaptionBold || got.Options.MaxClips != 3 {
		t.Errorf("options not preserved: %+v", got.Options)
	}
	if got.Metadata.Thumbnails["default"] != "https://example.com/t.jpg" {
		t.Errorf("metadata not preserved: %+v", got.Metadata)
	}
	if !got.CreatedAt.Equal(j.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, j.CreatedAt)
	}
}

func TestSQLiteStore_GetJob_ForeignOwnerIsNotFound(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	j := newTestJob("alice")
	_ = store.CreateJob(ctx, j)

	if _, err := store.GetJob(ctx, j.ID, "bob"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound for foreign owner, got %v", err)
	}
}

func TestSQLiteStore_UpdateJob(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	j := newTestJob("alice")
	_ = store.CreateJob(ctx, j)

	updated, err := store.UpdateJob(ctx, j.ID, "alice", JobUpdate{
		Status:      statusPtr(StatusDownloading),
		Stage:       strPtr("downloading video"),
		Progress:    intPtr(10),
		RemoteJobID: strPtr("remote-1"),
	})
	if err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}
	if updated.Status != StatusDownloading || updated.Progress != 10 || updated.RemoteJobID != "remote-1" {
		t.Errorf("update not applied: %+v", updated)
	}

	// Survives a fresh read.
	got, _ := store.GetJob(ctx, j.ID, "alice")
	if got.Status != StatusDownloading || got.RemoteJobID != "remote-1" {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestSQLiteStore_UpdateJob_TerminalWriteOnce(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	j := newTestJob("alice")
	_ = store.CreateJob(ctx, j)

	if _, err := store.UpdateJob(ctx, j.ID, "alice", JobUpdate{Status: statusPtr(StatusCancelled)}); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	got, err := store.UpdateJob(ctx, j.ID, "alice", JobUpdate{
		Status:   statusPtr(StatusCompleted),
		Progress: intPtr(100),
	})
	if err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("terminal status overwritten: got %s", got.Status)
	}

	persisted, _ := store.GetJob(ctx, j.ID, "alice")
	if persisted.Status != StatusCancelled || persisted.Progress == 100 {
		t.Errorf("ignored update leaked into storage: %+v", persisted)
	}
}

func TestSQLiteStore_UpdateJob_RemoteJobIDSetOnce(t *testing.T) {
	store := newTestSQLiteStore(t)
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

func TestSQLiteStore_UpdateJob_ClipsDenormalized(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	j := newTestJob("alice")
	_ = store.CreateJob(ctx, j)

	now := time.Now().UTC()
	clips := []Clip{{
		ID: "clip-1", JobID: j.ID, OwnerID: "alice", Title: "Highlight 1",
		StartTime: 0, EndTime: 30, DurationSeconds: 30, PredictedEngagement: 0.95,
		VideoURL: "https://cdn.example.com/clip1.mp4", Status: ClipReady,
		CreatedAt: now, UpdatedAt: now,
	}}

	updated, err := store.UpdateJob(ctx, j.ID, "alice", JobUpdate{
		Status:   statusPtr(StatusCompleted),
		Progress: intPtr(100),
		Clips:    clips,
	})
	if err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}
	if len(updated.Clips) != 1 {
		t.Fatalf("expected 1 clip, got %d", len(updated.Clips))
	}

	got, _ := store.GetJob(ctx, j.ID, "alice")
	if len(got.Clips) != 1 || got.Clips[0].VideoURL != "https://cdn.example.com/clip1.mp4" {
		t.Errorf("clips not persisted on job row: %+v", got.Clips)
	}
}

func TestSQLiteStore_ListJobs(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	first := newTestJob("alice")
	second := newTestJob("alice")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	other := newTestJob("bob")
	for _, j := range []*Job{first, second, other} {
		if err := store.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}
	}

	jobs, err := store.ListJobs(ctx, "alice")
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != second.ID {
		t.Error("expected newest-first ordering")
	}
}

func TestSQLiteStore_Clips(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	j := newTestJob("alice")
	_ = store.CreateJob(ctx, j)

	now := time.Now().UTC()
	c := &Clip{
		ID: "clip-1", JobID: j.ID, OwnerID: "alice", Title: "Highlight 1",
		StartTime: 10, EndTime: 40, DurationSeconds: 30, PredictedEngagement: 0.88,
		ThumbnailURLs: []string{"https://cdn.example.com/shot1.jpg"},
		Status:        ClipReady, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateClip(ctx, c); err != nil {
		t.Fatalf("CreateClip() error = %v", err)
	}

	clips, err := store.ListClips(ctx, "alice")
	if err != nil {
		t.Fatalf("ListClips() error = %v", err)
	}
	if len(clips) != 1 {
		t.Fatalf("expected 1 clip, got %d", len(clips))
	}
	if clips[0].ThumbnailURLs[0] != "https://cdn.example.com/shot1.jpg" {
		t.Errorf("thumbnail urls not preserved: %+v", clips[0])
	}

	foreign, err := store.ListClips(ctx, "bob")
	if err != nil {
		t.Fatalf("ListClips() error = %v", err)
	}
	if len(foreign) != 0 {
		t.Error("clips leaked across owners")
	}
}
