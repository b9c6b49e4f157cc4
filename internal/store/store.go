// Package store persists custom breathing patterns, session history and
// uploaded track metadata in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/j-emboi/sarcastic-serenity/internal/breathing"

	_ "modernc.org/sqlite"
)

var (
	// ErrBlobNotFound is returned when no blob metadata exists for an ID.
	ErrBlobNotFound = errors.New("blob metadata not found")
	// ErrPatternNotFound is returned when no custom pattern has the ID.
	ErrPatternNotFound = errors.New("custom pattern not found")
	// ErrPatternExists is returned when a custom pattern ID is taken.
	ErrPatternExists = errors.New("pattern id already exists")
)

// BlobMetadata stores metadata about a binary blob on disk.
type BlobMetadata struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	DiskName     string    `json:"-"`
	SizeBytes    int64     `json:"size_bytes"`
	SampleRate   int       `json:"sample_rate"`
	Channels     int       `json:"channels"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionRecord is one finished or abandoned breathing session.
type SessionRecord struct {
	ID              int64     `json:"id"`
	PatternID       string    `json:"pattern_id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	CyclesCompleted int       `json:"cycles_completed"`
	TotalCycles     int       `json:"total_cycles"`
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
	Completed       bool      `json:"completed"`
	Preset          string    `json:"preset,omitempty"`
}

// Store persists daemon state in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite store opened", "path", path)
	return st, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	original_name TEXT NOT NULL,
	content_type TEXT NOT NULL,
	disk_name TEXT NOT NULL UNIQUE,
	size_bytes INTEGER NOT NULL CHECK(size_bytes >= 0),
	sample_rate INTEGER NOT NULL DEFAULT 0,
	channels INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0 CHECK(duration_ms >= 0),
	created_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_blobs_created_at ON blobs(created_at_unix_ms);

CREATE TABLE IF NOT EXISTS patterns (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	inhale REAL NOT NULL CHECK(inhale > 0),
	hold REAL NOT NULL CHECK(hold > 0),
	exhale REAL NOT NULL CHECK(exhale > 0),
	hold2 REAL NOT NULL DEFAULT 0 CHECK(hold2 >= 0),
	cycles INTEGER NOT NULL CHECK(cycles >= 1),
	created_at_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern_id TEXT NOT NULL,
	started_at_unix_ms INTEGER NOT NULL,
	ended_at_unix_ms INTEGER NOT NULL,
	cycles_completed INTEGER NOT NULL,
	total_cycles INTEGER NOT NULL,
	elapsed_seconds REAL NOT NULL,
	completed INTEGER NOT NULL,
	preset TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at_unix_ms);
`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}
	slog.Debug("sqlite migrations applied")
	return nil
}

// CreatePattern stores a custom pattern. Built-in IDs are reserved.
func (s *Store) CreatePattern(ctx context.Context, p breathing.Pattern) error {
	p.ID = strings.ToLower(strings.TrimSpace(p.ID))
	if p.ID == "" {
		return fmt.Errorf("%w: id is required", breathing.ErrInvalidPattern)
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = p.ID
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := breathing.PatternByID(p.ID); err == nil {
		return fmt.Errorf("%w: %q is built in", ErrPatternExists, p.ID)
	}

	const q = `
INSERT INTO patterns (
	id, name, description, category, inhale, hold, exhale, hold2, cycles, created_at_unix_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`
	res, err := s.db.ExecContext(ctx, q,
		p.ID, p.Name, p.Description, string(p.Category),
		p.Inhale, p.Hold, p.Exhale, p.Hold2, p.Cycles,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrPatternExists, p.ID)
	}
	slog.Debug("pattern created", "pattern_id", p.ID, "cycles", p.Cycles)
	return nil
}

const patternColumns = `id, name, description, category, inhale, hold, exhale, hold2, cycles`

func scanPattern(row interface{ Scan(...any) error }) (breathing.Pattern, error) {
	var (
		p        breathing.Pattern
		category string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &category, &p.Inhale, &p.Hold, &p.Exhale, &p.Hold2, &p.Cycles)
	p.Category = breathing.Category(category)
	return p, err
}

// Patterns returns all custom patterns ordered by creation.
func (s *Store) Patterns(ctx context.Context) ([]breathing.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+patternColumns+` FROM patterns ORDER BY created_at_unix_ms, id`)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var out []breathing.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PatternByID returns one custom pattern.
func (s *Store) PatternByID(ctx context.Context, id string) (breathing.Pattern, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	p, err := scanPattern(s.db.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM patterns WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return breathing.Pattern{}, ErrPatternNotFound
		}
		return breathing.Pattern{}, fmt.Errorf("query pattern: %w", err)
	}
	return p, nil
}

// DeletePattern removes a custom pattern.
func (s *Store) DeletePattern(ctx context.Context, id string) error {
	id = strings.ToLower(strings.TrimSpace(id))
	res, err := s.db.ExecContext(ctx, `DELETE FROM patterns WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPatternNotFound
	}
	slog.Info("pattern deleted", "pattern_id", id)
	return nil
}

// InsertSession persists one history record and returns its ID.
func (s *Store) InsertSession(ctx context.Context, r SessionRecord) (int64, error) {
	if strings.TrimSpace(r.PatternID) == "" {
		return 0, fmt.Errorf("session pattern id is required")
	}
	if r.EndedAt.IsZero() {
		r.EndedAt = time.Now().UTC()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = r.EndedAt
	}
	const q = `
INSERT INTO sessions (
	pattern_id, started_at_unix_ms, ended_at_unix_ms, cycles_completed, total_cycles, elapsed_seconds, completed, preset
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`
	res, err := s.db.ExecContext(ctx, q,
		r.PatternID, r.StartedAt.UnixMilli(), r.EndedAt.UnixMilli(),
		r.CyclesCompleted, r.TotalCycles, r.ElapsedSeconds, r.Completed, r.Preset,
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, _ := res.LastInsertId()
	slog.Debug("session recorded", "session_id", id, "pattern_id", r.PatternID, "completed", r.Completed)
	return id, nil
}

// Sessions returns the most recent history records, newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, pattern_id, started_at_unix_ms, ended_at_unix_ms, cycles_completed, total_cycles, elapsed_seconds, completed, preset
FROM sessions
ORDER BY started_at_unix_ms DESC, id DESC
LIMIT ?
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			r              SessionRecord
			started, ended int64
		)
		if err := rows.Scan(&r.ID, &r.PatternID, &started, &ended, &r.CyclesCompleted, &r.TotalCycles, &r.ElapsedSeconds, &r.Completed, &r.Preset); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.EndedAt = time.UnixMilli(ended).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateBlob creates one blob metadata row.
func (s *Store) CreateBlob(ctx context.Context, meta BlobMetadata) error {
	if strings.TrimSpace(meta.ID) == "" {
		return fmt.Errorf("blob id is required")
	}
	if strings.TrimSpace(meta.Kind) == "" {
		return fmt.Errorf("blob kind is required")
	}
	if strings.TrimSpace(meta.OriginalName) == "" {
		return fmt.Errorf("blob original name is required")
	}
	if strings.TrimSpace(meta.DiskName) == "" {
		return fmt.Errorf("blob disk name is required")
	}
	if meta.SizeBytes < 0 {
		return fmt.Errorf("blob size must be non-negative")
	}
	if meta.SampleRate < 0 || meta.Channels < 0 || meta.DurationMS < 0 {
		return fmt.Errorf("blob audio format must be non-negative")
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	const q = `
INSERT INTO blobs (
	id, kind, original_name, content_type, disk_name, size_bytes,
	sample_rate, channels, duration_ms, created_at_unix_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	_, err := s.db.ExecContext(ctx, q,
		meta.ID, meta.Kind, meta.OriginalName, meta.ContentType,
		meta.DiskName, meta.SizeBytes,
		meta.SampleRate, meta.Channels, meta.DurationMS, meta.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert blob metadata: %w", err)
	}
	slog.Debug("blob metadata created", "blob_id", meta.ID, "kind", meta.Kind, "size", meta.SizeBytes)
	return nil
}

const blobColumns = `id, kind, original_name, content_type, disk_name, size_bytes, sample_rate, channels, duration_ms, created_at_unix_ms`

func scanBlob(row interface{ Scan(...any) error }) (BlobMetadata, error) {
	var (
		meta    BlobMetadata
		created int64
	)
	err := row.Scan(&meta.ID, &meta.Kind, &meta.OriginalName, &meta.ContentType, &meta.DiskName, &meta.SizeBytes,
		&meta.SampleRate, &meta.Channels, &meta.DurationMS, &created)
	meta.CreatedAt = time.UnixMilli(created).UTC()
	return meta, err
}

// BlobByID returns blob metadata by UUID.
func (s *Store) BlobByID(ctx context.Context, id string) (BlobMetadata, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return BlobMetadata{}, fmt.Errorf("blob id is required")
	}
	meta, err := scanBlob(s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Debug("blob not found", "blob_id", id)
			return BlobMetadata{}, ErrBlobNotFound
		}
		return BlobMetadata{}, fmt.Errorf("query blob metadata: %w", err)
	}
	return meta, nil
}

// Blobs lists blob metadata of one kind, newest first.
func (s *Store) Blobs(ctx context.Context, kind string) ([]BlobMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE kind = ? ORDER BY created_at_unix_ms DESC, id`, kind)
	if err != nil {
		return nil, fmt.Errorf("query blobs: %w", err)
	}
	defer rows.Close()

	var out []BlobMetadata
	for rows.Next() {
		meta, err := scanBlob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blob: %w", err)
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}
