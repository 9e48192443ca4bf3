package job

import (
	"context"
	"errors"
	"testing"

	"github.com/clipmaster/clipmaster-api/internal/ffmpeg"
	"github.com/clipmaster/clipmaster-api/internal/youtube"
)

// stubMetadata is a scriptable youtube.Client.
type stubMetadata struct {
	video *youtube.Video
	err   error
}

func (m *stubMetadata) GetVideo(ctx context.Context, videoID string) (*youtube.Video, error) {
	if m.err != nil {
		return nil, m.err
	}
	v := *m.video
	v.ID = videoID
	return &v, nil
}

// submitGateway extends stubGateway with a scriptable Submit.
type submitGateway struct {
	stubGateway
	submit      func(ctx context.Context) (ffmpeg.Outcome, error)
	cancelCalls []string
	cancelOK    bool
}

func (g *submitGateway) Submit(ctx context.Context, mediaURL string, opts ffmpeg.SubmitOptions) (ffmpeg.Outcome, error) {
	return g.submit(ctx)
}

func (g *submitGateway) Cancel(ctx context.Context, remoteJobID string) bool {
	g.cancelCalls = append(g.cancelCalls, remoteJobID)
	return g.cancelOK
}

func newTestService(store Store, gw ffmpeg.Client, meta youtube.Client) *Service {
	r := NewReconciler(store, gw)
	return NewService(store, gw, meta, r, nil)
}

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func okMetadata() *stubMetadata {
	return &stubMetadata{video: &youtube.Video{Title: "Test", Duration: 600}}
}

func TestService_CreateJob_InvalidURL(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, &stubGateway{}, okMetadata())

	_, err := svc.CreateJob(context.Background(), "alice", CreateJobInput{SourceURL: "https://vimeo.com/1"})
	if !errors.Is(err, ErrInvalidSourceURL) {
		t.Errorf("expected ErrInvalidSourceURL, got %v", err)
	}

	// Nothing was persisted.
	jobs, _ := store.ListJobs(context.Background(), "alice")
	if len(jobs) != 0 {
		t.Error("job persisted despite invalid URL")
	}
}

func TestService_CreateJob_SourceNotFound(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, &stubGateway{}, &stubMetadata{err: youtube.ErrVideoNotFound})

	_, err := svc.CreateJob(context.Background(), "alice", CreateJobInput{SourceURL: testURL})
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestService_CreateJob_AsyncAcceptance(t *testing.T) {
	store := NewMemoryStore()
	gw := &submitGateway{
		submit: func(ctx context.Context) (ffmpeg.Outcome, error) {
			return ffmpeg.Outcome{Kind: ffmpeg.OutcomeAccepted, RemoteJobID: "remote-1", RemoteStatus: "queued"}, nil
		},
	}
	svc := newTestService(store, gw, okMetadata())

	j, err := svc.CreateJob(context.Background(), "alice", CreateJobInput{SourceURL: testURL})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if j.Status != StatusQueued {
		t.Errorf("expected queued, got %s", j.Status)
	}
	if j.RemoteJobID != "remote-1" {
		t.Errorf("expected remote job id persisted, got %q", j.RemoteJobID)
	}
	if j.Metadata.Title != "Test" || j.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("metadata not captured: %+v", j.Metadata)
	}
}

// Short-link ids shorter than the usual eleven characters are still accepted;
// only the metadata provider decides whether a video exists.
func TestService_CreateJob_ShortVideoID(t *testing.T) {
	store := NewMemoryStore()
	gw := &submitGateway{
		submit: func(ctx context.Context) (ffmpeg.Outcome, error) {
			return ffmpeg.Outcome{Kind: ffmpeg.OutcomeAccepted, RemoteJobID: "remote-1", RemoteStatus: "queued"}, nil
		},
	}
	svc := newTestService(store, gw, okMetadata())

	j, err := svc.CreateJob(context.Background(), "alice", CreateJobInput{SourceURL: "https://youtu.be/abc123"})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if j.Status != StatusQueued {
		t.Errorf("expected queued, got %s", j.Status)
	}
	if j.VideoID != "abc123" {
		t.Errorf("expected video id abc123, got %q", j.VideoID)
	}
}

// Gateway status tokens are matched case-insensitively at acceptance time.
func TestService_CreateJob_UppercaseRemoteStatus(t *testing.T) {
	store := NewMemoryStore()
	gw := &submitGateway{
		submit: func(ctx context.Context) (ffmpeg.Outcome, error) {
			return ffmpeg.Outcome{Kind: ffmpeg.OutcomeAccepted, RemoteJobID: "remote-1", RemoteStatus: "DOWNLOADING"}, nil
		},
	}
	svc := newTestService(store, gw, okMetadata())

	j, err := svc.CreateJob(context.Background(), "alice", CreateJobInput{SourceURL: testURL})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if j.Status != StatusDownloading {
		t.Errorf("expected downloading from uppercase token, got %s", j.Status)
	}
}

func TestService_CreateJob_SynchronousCompletion(t *testing.T) {
	store := NewMemoryStore()
	gw := &submitGateway{
		submit: func(ctx context.Context) (ffmpeg.Outcome, error) {
			return ffmpeg.Outcome{
				Kind:      ffmpeg.OutcomeCompleted,
				Artifacts: []ffmpeg.Artifact{{URL: "https://gw.example.com/out.mp4", Kind: ffmpeg.ArtifactVideo}},
			}, nil
		},
	}
	svc := newTestService(store, gw, okMetadata())

	j, err := svc.CreateJob(context.Background(), "alice", CreateJobInput{SourceURL: testURL})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if j.Status != StatusCompleted || j.Progress != 100 {
		t.Errorf("expected completed/100, got %s/%d", j.Status, j.Progress)
	}
	if len(j.Clips) != 1 {
		t.Errorf("expected 1 clip, got %d", len(j.Clips))
	}
	if j.RemoteJobID != "" {
		t.Errorf("synchronous completion must not record a remote id, got %q", j.RemoteJobID)
	}
}

// A gateway failure still persists the job, so the user gets an id to query.
func TestService_CreateJob_GatewayFailure(t *testing.T) {
	store := NewMemoryStore()
	gw := &submitGateway{
		submit: func(ctx context.Context) (ffmpeg.Outcome, error) {
			return ffmpeg.Outcome{}, ffmpeg.ErrGatewayUnavailable
		},
	}
	svc := newTestService(store, gw, okMetadata())

	j, err := svc.CreateJob(context.Background(), "alice", CreateJobInput{SourceURL: testURL})
	if !errors.Is(err, ErrGatewaySubmit) {
		t.Fatalf("expected ErrGatewaySubmit, got %v", err)
	}
	if j == nil {
		t.Fatal("expected the failed job to be returned")
	}
	if j.Status != StatusFailed || j.ErrorMessage == "" {
		t.Errorf("expected failed job with message, got %s %q", j.Status, j.ErrorMessage)
	}

	stored, getErr := store.GetJob(context.Background(), j.ID, "alice")
	if getErr != nil {
		t.Fatalf("failed job not queryable: %v", getErr)
	}
	if stored.Status != StatusFailed {
		t.Errorf("expected failed persisted, got %s", stored.Status)
	}
}

// brokenUpdateStore fails every UpdateJob while delegating the rest.
type brokenUpdateStore struct {
	Store
}

func (s *brokenUpdateStore) UpdateJob(ctx context.Context, id, ownerID string, upd JobUpdate) (*Job, error) {
	return nil, errors.New("disk full")
}

// Even when marking the job failed cannot be persisted, the caller still gets
// the created job back alongside the submission error.
func TestService_CreateJob_GatewayAndPersistFailure(t *testing.T) {
	store := &brokenUpdateStore{Store: NewMemoryStore()}
	gw := &submitGateway{
		submit: func(ctx context.Context) (ffmpeg.Outcome, error) {
			return ffmpeg.Outcome{}, ffmpeg.ErrGatewayUnavailable
		},
	}
	svc := newTestService(store, gw, okMetadata())

	j, err := svc.CreateJob(context.Background(), "alice", CreateJobInput{SourceURL: testURL})
	if !errors.Is(err, ErrGatewaySubmit) {
		t.Fatalf("expected ErrGatewaySubmit, got %v", err)
	}
	if j == nil {
		t.Fatal("expected the created job to be returned despite the persistence error")
	}
	if j.ID == "" || j.Status != StatusQueued {
		t.Errorf("expected the queued row back, got %+v", j)
	}
}

func TestService_CancelJob(t *testing.T) {
	store := NewMemoryStore()
	gw := &submitGateway{
		submit: func(ctx context.Context) (ffmpeg.Outcome, error) {
			return ffmpeg.Outcome{Kind: ffmpeg.OutcomeAccepted, RemoteJobID: "remote-1", RemoteStatus: "queued"}, nil
		},
		cancelOK: false, // remote refuses; local cancel must still win
	}
	svc := newTestService(store, gw, okMetadata())
	ctx := context.Background()

	j, err := svc.CreateJob(ctx, "alice", CreateJobInput{SourceURL: testURL})
	if err != nil {
		t.Fatal(err)
	}

	cancelled, err := svc.CancelJob(ctx, "alice", j.ID)
	if err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.Stage != "cancelled by user" || cancelled.Progress != 0 {
		t.Errorf("unexpected cancellation fields: %q %d", cancelled.Stage, cancelled.Progress)
	}
	if len(gw.cancelCalls) != 1 || gw.cancelCalls[0] != "remote-1" {
		t.Errorf("expected one remote cancel attempt, got %v", gw.cancelCalls)
	}
}

func TestService_CancelJob_TerminalNoOp(t *testing.T) {
	store := NewMemoryStore()
	gw := &submitGateway{
		submit: func(ctx context.Context) (ffmpeg.Outcome, error) {
			return ffmpeg.Outcome{
				Kind:      ffmpeg.OutcomeCompleted,
				Artifacts: []ffmpeg.Artifact{{URL: "https://gw.example.com/out.mp4", Kind: ffmpeg.ArtifactVideo}},
			}, nil
		},
	}
	svc := newTestService(store, gw, okMetadata())
	ctx := context.Background()

	j, err := svc.CreateJob(ctx, "alice", CreateJobInput{SourceURL: testURL})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.CancelJob(ctx, "alice", j.ID)
	if err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("cancelling a completed job must not change it: got %s", got.Status)
	}
	if len(gw.cancelCalls) != 0 {
		t.Error("no remote cancel should be attempted for a terminal job")
	}
}

func TestService_CancelJob_NotFound(t *testing.T) {
	svc := newTestService(NewMemoryStore(), &stubGateway{}, okMetadata())

	if _, err := svc.CancelJob(context.Background(), "alice", "job-unknown"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestService_GetMetadata(t *testing.T) {
	svc := newTestService(NewMemoryStore(), &stubGateway{}, okMetadata())

	v, err := svc.GetMetadata(context.Background(), testURL)
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if v.ID != "dQw4w9WgXcQ" || v.Title != "Test" {
		t.Errorf("unexpected video: %+v", v)
	}

	if _, err := svc.GetMetadata(context.Background(), "not a url"); !errors.Is(err, ErrInvalidSourceURL) {
		t.Errorf("expected ErrInvalidSourceURL, got %v", err)
	}
}
