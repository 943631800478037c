package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		source TEXT,
		doc_count INTEGER NOT NULL,
		dimensions INTEGER NOT NULL,
		model TEXT NOT NULL,
		index_type TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_builds_created_at ON builds(created_at);

	CREATE TABLE IF NOT EXISTS resolutions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		build_id TEXT,
		ticket_text TEXT NOT NULL,
		answer TEXT NOT NULL,
		references_json TEXT NOT NULL,
		action_required TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resolutions_created_at ON resolutions(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordBuild inserts a build. CreatedAt is set to now when zero.
func (s *SQLiteStorage) RecordBuild(ctx context.Context, b *BuildRecord) error {
	if b.ID == "" {
		return fmt.Errorf("build id is required")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (id, created_at, source, doc_count, dimensions, model, index_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CreatedAt, b.Source, b.DocCount, b.Dimensions, b.Model, b.IndexType,
	)
	if err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}
	return nil
}

// ListBuilds returns the most recent builds first.
func (s *SQLiteStorage) ListBuilds(ctx context.Context, limit int) ([]*BuildRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, source, doc_count, dimensions, model, index_type
		 FROM builds ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []*BuildRecord
	for rows.Next() {
		var b BuildRecord
		var source sql.NullString
		if err := rows.Scan(&b.ID, &b.CreatedAt, &source, &b.DocCount, &b.Dimensions, &b.Model, &b.IndexType); err != nil {
			return nil, err
		}
		b.Source = source.String
		builds = append(builds, &b)
	}
	return builds, rows.Err()
}

// RecordResolution inserts a resolution. ID and CreatedAt are filled in when empty.
func (s *SQLiteStorage) RecordResolution(ctx context.Context, r *ResolutionRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	refs := r.Resolution.References
	if refs == nil {
		refs = []string{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("failed to marshal references: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resolutions (id, created_at, build_id, ticket_text, answer, references_json, action_required)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt, r.BuildID, r.TicketText, r.Resolution.Answer, string(refsJSON), r.Resolution.ActionRequired,
	)
	if err != nil {
		return fmt.Errorf("failed to record resolution: %w", err)
	}
	return nil
}

// ListResolutions returns resolutions newest first.
func (s *SQLiteStorage) ListResolutions(ctx context.Context, offset, limit int) ([]*ResolutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, build_id, ticket_text, answer, references_json, action_required
		 FROM resolutions ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ResolutionRecord
	for rows.Next() {
		var r ResolutionRecord
		var buildID sql.NullString
		var refsJSON string
		if err := rows.Scan(&r.ID, &r.CreatedAt, &buildID, &r.TicketText, &r.Resolution.Answer, &refsJSON, &r.Resolution.ActionRequired); err != nil {
			return nil, err
		}
		r.BuildID = buildID.String
		if err := json.Unmarshal([]byte(refsJSON), &r.Resolution.References); err != nil {
			return nil, fmt.Errorf("failed to unmarshal references for %s: %w", r.ID, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// CountResolutions returns the total number of recorded resolutions.
func (s *SQLiteStorage) CountResolutions(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resolutions`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
