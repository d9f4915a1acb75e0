package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"clipmux/domain/video"
)

const schema = `
CREATE TABLE IF NOT EXISTS invocations (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	token           TEXT NOT NULL,
	source          TEXT NOT NULL,
	destination     TEXT NOT NULL,
	keep_audio      INTEGER NOT NULL,
	start_ms        INTEGER NOT NULL,
	end_ms          INTEGER NOT NULL,
	status          TEXT NOT NULL,
	error_index     INTEGER NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	cleanup_error   TEXT NOT NULL DEFAULT '',
	skipped_tracks  TEXT NOT NULL DEFAULT '[]',
	tracks          INTEGER NOT NULL,
	samples_written INTEGER NOT NULL,
	samples_dropped INTEGER NOT NULL,
	seek_us         INTEGER NOT NULL,
	started_at      TEXT NOT NULL,
	finished_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invocations_finished ON invocations(finished_at);
`

// Store keeps the diagnostic record of finished invocations in SQLite
type Store struct {
	db   *sql.DB
	path string
}

// Entry is one stored invocation
type Entry struct {
	ID             int64
	Token          video.Token
	Source         string
	Destination    string
	KeepAudio      bool
	StartMs        int64
	EndMs          int64
	Status         string
	ErrorIndex     int
	Error          string
	CleanupError   string
	SkippedTracks  []int
	Tracks         int
	SamplesWritten int
	SamplesDropped int
	SeekUs         int64
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Duration returns how long the invocation ran
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Open creates or opens the database at path
func Open(path string) (*Store, error) {
	// pragmas in the DSN apply to every pooled connection
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file
func (s *Store) Path() string {
	return s.path
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores out
func (s *Store) Record(ctx context.Context, out video.Outcome) error {
	skipped, err := json.Marshal(nonNil(out.SkippedTracks))
	if err != nil {
		return fmt.Errorf("encode skipped tracks: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO invocations (
	token, source, destination, keep_audio, start_ms, end_ms, status, error_index,
	error, cleanup_error, skipped_tracks, tracks, samples_written, samples_dropped,
	seek_us, started_at, finished_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(out.Token),
		out.Request.SourcePath,
		out.Request.DestinationPath,
		boolToInt(out.Request.KeepAudio),
		out.Request.StartMs,
		out.Request.EndMs,
		out.Status.String(),
		int(out.Status.Code()),
		errString(out.Err),
		errString(out.CleanupErr),
		string(skipped),
		out.Tracks,
		out.SamplesWritten,
		out.SamplesDropped,
		out.SeekUs,
		out.StartedAt.UTC().Format(time.RFC3339Nano),
		out.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, token, source, destination, keep_audio, start_ms, end_ms, status, error_index,
	error, cleanup_error, skipped_tracks, tracks, samples_written, samples_dropped,
	seek_us, started_at, finished_at
FROM invocations
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                   Entry
			token, skipped      string
			keepAudio           int
			startedAt, finished string
		)
		if err := rows.Scan(
			&e.ID, &token, &e.Source, &e.Destination, &keepAudio, &e.StartMs, &e.EndMs,
			&e.Status, &e.ErrorIndex, &e.Error, &e.CleanupError, &skipped, &e.Tracks,
			&e.SamplesWritten, &e.SamplesDropped, &e.SeekUs, &startedAt, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}

		e.Token = video.Token(token)
		e.KeepAudio = keepAudio != 0
		if err := json.Unmarshal([]byte(skipped), &e.SkippedTracks); err != nil {
			return nil, fmt.Errorf("decode skipped tracks of %d: %w", e.ID, err)
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func nonNil(tracks []int) []int {
	if tracks == nil {
		return []int{}
	}
	return tracks
}
