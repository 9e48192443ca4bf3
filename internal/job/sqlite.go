package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	source_url    TEXT NOT NULL,
	video_id      TEXT NOT NULL,
	remote_job_id TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	stage         TEXT NOT NULL DEFAULT '',
	progress      INTEGER NOT NULL DEFAULT 0,
	options       TEXT NOT NULL,
	metadata      TEXT NOT NULL,
	clips         TEXT,
	error_message TEXT,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	expires_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner_id, created_at);

CREATE TABLE IF NOT EXISTS clips (
	id                   TEXT PRIMARY KEY,
	job_id               TEXT NOT NULL REFERENCES jobs(id),
	owner_id             TEXT NOT NULL,
	title                TEXT NOT NULL,
	start_time           REAL NOT NULL,
	end_time             REAL NOT NULL,
	duration_seconds     REAL NOT NULL,
	predicted_engagement REAL NOT NULL,
	video_url            TEXT NOT NULL DEFAULT '',
	thumbnail_urls       TEXT NOT NULL DEFAULT '[]',
	subtitle_urls        TEXT NOT NULL DEFAULT '[]',
	status               TEXT NOT NULL,
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clips_owner ON clips(owner_id, created_at);
`

// SQLiteStore is a sqlite-backed implementation of Store. A single connection
// with WAL journaling serializes every read-modify-write, which makes
// UpdateJob linearizable per job without an application-level lock.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// bootstraps the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("sqlite: execute %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite: bootstrap schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateJob persists a new job row.
func (s *SQLiteStore) CreateJob(ctx context.Context, j *Job) error {
	options, err := json.Marshal(j.Options)
	if err != nil {
		return fmt.Errorf("sqlite: marshal options: %w", err)
	}
	metadata, err := json.Marshal(j.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: marshal metadata: %w", err)
	}
	clips, err := marshalClips(j.Clips)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner_id, source_url, video_id, remote_job_id,
			status, stage, progress, options, metadata, clips, error_message,
			created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.OwnerID, j.SourceURL, j.VideoID, j.RemoteJobID,
		string(j.Status), j.Stage, j.Progress, string(options), string(metadata),
		clips, nullString(j.ErrorMessage),
		j.CreatedAt.Format(time.RFC3339Nano), j.UpdatedAt.Format(time.RFC3339Nano),
		j.ExpiresAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, owner_id, source_url, video_id, remote_job_id,
	status, stage, progress, options, metadata, clips, error_message,
	created_at, updated_at, expires_at`

// GetJob retrieves a job by id scoped to the owner.
func (s *SQLiteStore) GetJob(ctx context.Context, id, ownerID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ? AND owner_id = ?`, id, ownerID)
	return scanJob(row)
}

// ListJobs returns the owner's jobs, newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, ownerID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateJob applies a partial update inside a transaction. The single
// connection serializes transactions, so the read-apply-write sequence is
// atomic with respect to concurrent pollers.
func (s *SQLiteStore) UpdateJob(ctx context.Context, id, ownerID string, upd JobUpdate) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ? AND owner_id = ?`, id, ownerID)
	current, err := scanJob(row)
	if err != nil {
		return nil, err
	}

	updated, applied := applyUpdate(current, upd)
	if !applied {
		return updated, nil
	}

	clips, err := marshalClips(updated.Clips)
	if err != nil {
		return nil, err
	}

	// The status guard re-states terminal write-once at the SQL layer; a row
	// that turned terminal between transactions is left untouched.
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET remote_job_id = ?, status = ?, stage = ?, progress = ?,
			clips = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
			AND status NOT IN ('completed', 'failed', 'cancelled')
	`, updated.RemoteJobID, string(updated.Status), updated.Stage, updated.Progress,
		clips, nullString(updated.ErrorMessage),
		updated.UpdatedAt.Format(time.RFC3339Nano), id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return current, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit update: %w", err)
	}
	return updated, nil
}

// CreateClip persists a new clip row.
func (s *SQLiteStore) CreateClip(ctx context.Context, c *Clip) error {
	thumbs, err := json.Marshal(urlsOrEmpty(c.ThumbnailURLs))
	if err != nil {
		return fmt.Errorf("sqlite: marshal thumbnail urls: %w", err)
	}
	subs, err := json.Marshal(urlsOrEmpty(c.SubtitleURLs))
	if err != nil {
		return fmt.Errorf("sqlite: marshal subtitle urls: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clips (id, job_id, owner_id, title, start_time, end_time,
			duration_seconds, predicted_engagement, video_url, thumbnail_urls,
			subtitle_urls, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.JobID, c.OwnerID, c.Title, c.StartTime, c.EndTime,
		c.DurationSeconds, c.PredictedEngagement, c.VideoURL, string(thumbs),
		string(subs), string(c.Status),
		c.CreatedAt.Format(time.RFC3339Nano), c.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: insert clip: %w", err)
	}
	return nil
}

// ListClips returns the owner's clips, newest first.
func (s *SQLiteStore) ListClips(ctx context.Context, ownerID string) ([]*Clip, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, owner_id, title, start_time, end_time,
			duration_seconds, predicted_engagement, video_url, thumbnail_urls,
			subtitle_urls, status, created_at, updated_at
		FROM clips WHERE owner_id = ? ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list clips: %w", err)
	}
	defer rows.Close()

	clips := make([]*Clip, 0)
	for rows.Next() {
		var c Clip
		var thumbs, subs, status, createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.JobID, &c.OwnerID, &c.Title, &c.StartTime,
			&c.EndTime, &c.DurationSeconds, &c.PredictedEngagement, &c.VideoURL,
			&thumbs, &subs, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan clip: %w", err)
		}
		if err := json.Unmarshal([]byte(thumbs), &c.ThumbnailURLs); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal thumbnail urls: %w", err)
		}
		if err := json.Unmarshal([]byte(subs), &c.SubtitleURLs); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal subtitle urls: %w", err)
		}
		c.Status = ClipStatus(status)
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		clips = append(clips, &c)
	}
	return clips, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var status, options, metadata, createdAt, updatedAt, expiresAt string
	var clips, errMsg sql.NullString

	err := row.Scan(&j.ID, &j.OwnerID, &j.SourceURL, &j.VideoID, &j.RemoteJobID,
		&status, &j.Stage, &j.Progress, &options, &metadata, &clips, &errMsg,
		&createdAt, &updatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan job: %w", err)
	}

	j.Status = Status(status)
	j.ErrorMessage = errMsg.String
	if err := json.Unmarshal([]byte(options), &j.Options); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal options: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &j.Metadata); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal metadata: %w", err)
	}
	if clips.Valid && clips.String != "" {
		if err := json.Unmarshal([]byte(clips.String), &j.Clips); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal clips: %w", err)
		}
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	j.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
	return &j, nil
}

func marshalClips(clips []Clip) (sql.NullString, error) {
	if clips == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(clips)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("sqlite: marshal clips: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func urlsOrEmpty(urls []string) []string {
	if urls == nil {
		return []string{}
	}
	return urls
}
