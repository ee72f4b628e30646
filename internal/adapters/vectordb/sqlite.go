// Package vectordb provides embedding index adapters.
// Clean Architecture: Adapter implementing ports.EmbeddingIndex.
package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
)

// SQLiteStore persists embedding collections in a single SQLite file.
// Ranking is exact: every candidate passing the filter is scored.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	dataPath string
}

// OpenSQLiteStore opens (creating if needed) the index database under dataPath.
func OpenSQLiteStore(dataPath string) (*SQLiteStore, error) {
	if dataPath == "" {
		dataPath = "./data"
	}

	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dsn := "file:" + filepath.Join(dataPath, "index.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &SQLiteStore{db: db, dataPath: dataPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		embedding_model TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS entries (
		collection TEXT NOT NULL REFERENCES collections(name),
		id TEXT NOT NULL,
		document TEXT NOT NULL,
		metadata TEXT NOT NULL,
		embedding BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateOrGet returns the named collection, creating it bound to model on first use.
// Reopening a collection with a different model is an error: the stored vectors
// would not be comparable with new queries.
func (s *SQLiteStore) CreateOrGet(ctx context.Context, name, model string, embedder ports.Embedder) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT embedding_model FROM collections WHERE name = ?", name).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO collections (name, embedding_model) VALUES (?, ?)", name, model); err != nil {
			return nil, fmt.Errorf("creating collection: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("reading collection: %w", err)
	case existing != model:
		return nil, fmt.Errorf("collection %q uses embedding model %q, not %q", name, existing, model)
	}

	return &Collection{store: s, name: name, embedder: embedder}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Collection is one named set of embedded entries. It implements ports.EmbeddingIndex.
type Collection struct {
	store    *SQLiteStore
	name     string
	embedder ports.Embedder
}

// Upsert embeds docs in one batch and writes them in a single transaction.
func (c *Collection) Upsert(ctx context.Context, docs ...ports.Document) error {
	embeddings, err := embedDocuments(ctx, c.embedder, docs)
	if err != nil || len(docs) == 0 {
		return err
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (collection, id, document, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		embeddingJSON, err := json.Marshal(embeddings[i])
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.name, doc.ID, doc.Text, string(metadataJSON), embeddingJSON); err != nil {
			return fmt.Errorf("upserting entry %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// Query embeds text and returns the metadata of the nearest entries.
func (c *Collection) Query(ctx context.Context, text string, topK int, filter ports.Filter) ([]entities.Metadata, error) {
	if topK <= 0 {
		return nil, nil
	}

	where, args, err := filterClause(c.name, filter)
	if err != nil {
		return nil, err
	}

	// Skip the embedding call entirely when nothing could match.
	n, err := c.count(ctx, where, args)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	query, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	rows, err := c.store.db.QueryContext(ctx, "SELECT id, metadata, embedding FROM entries WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var candidates []scored
	for rows.Next() {
		var id, metadataJSON string
		var embeddingJSON []byte
		if err := rows.Scan(&id, &metadataJSON, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		var embedding []float32
		if err := json.Unmarshal(embeddingJSON, &embedding); err != nil {
			continue // Skip corrupted embeddings
		}
		var metadata entities.Metadata
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			continue
		}
		candidates = append(candidates, scored{id: id, metadata: metadata, score: cosineSimilarity(query, embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return rank(candidates, topK), nil
}

// Delete removes entries whose metadata matches filter.
func (c *Collection) Delete(ctx context.Context, filter ports.Filter) (int, error) {
	if len(filter) == 0 {
		return 0, nil
	}
	where, args, err := filterClause(c.name, filter)
	if err != nil {
		return 0, err
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	res, err := c.store.db.ExecContext(ctx, "DELETE FROM entries WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Count returns the number of entries in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.count(ctx, "collection = ?", []any{c.name})
}

func (c *Collection) count(ctx context.Context, where string, args []any) (int, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	var n int
	if err := c.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// filterClause renders the collection predicate plus one json_extract equality per
// filter key. Keys are sorted so identical filters produce identical SQL.
func filterClause(collection string, filter ports.Filter) (string, []any, error) {
	clauses := []string{"collection = ?"}
	args := []any{collection}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "" || strings.ContainsAny(k, `"\`) {
			return "", nil, fmt.Errorf("invalid filter key %q", k)
		}
		clauses = append(clauses, "json_extract(metadata, ?) = ?")
		args = append(args, `$."`+k+`"`, filter[k])
	}
	return strings.Join(clauses, " AND "), args, nil
}
