// Package store provides incident store adapters.
// Clean Architecture: Adapters implementing ports.IncidentStore.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
)

// migrations are applied in order; applied versions are tracked in schema_versions.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS incidents (
    id          TEXT PRIMARY KEY,
    content     TEXT NOT NULL DEFAULT '',
    fields      TEXT NOT NULL DEFAULT '{}',
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incidents_updated_at ON incidents(updated_at DESC);
`,
	},
}

// SQLiteStore keeps one row per incident. Structured fields live in a JSON column
// merged with json_patch, so a partial report never erases fields it does not name.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens the database at path and runs pending migrations.
// Pass ":memory:" for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// SaveContent sets the raw document text, creating the record if needed.
func (s *SQLiteStore) SaveContent(ctx context.Context, id, content string) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (id, content, fields, created_at, updated_at)
		VALUES (?, ?, '{}', ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at`,
		id, content, now, now)
	if err != nil {
		return fmt.Errorf("saving incident %s content: %w", id, err)
	}
	return nil
}

// MergeReport patches the set fields of report into the record in a single statement.
func (s *SQLiteStore) MergeReport(ctx context.Context, id string, report entities.Report) error {
	patch, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incidents (id, content, fields, created_at, updated_at)
		VALUES (?, '', json(?), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fields = json_patch(incidents.fields, excluded.fields),
			updated_at = excluded.updated_at`,
		id, string(patch), now, now)
	if err != nil {
		return fmt.Errorf("merging incident %s report: %w", id, err)
	}
	return nil
}

// Get returns the stored record or ports.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*entities.IncidentRecord, error) {
	var (
		rec    entities.IncidentRecord
		fields string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, fields, updated_at FROM incidents WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Content, &fields, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading incident %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(fields), &rec.Report); err != nil {
		return nil, fmt.Errorf("decoding incident %s fields: %w", id, err)
	}
	return &rec, nil
}
