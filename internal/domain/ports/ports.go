// Package ports defines interfaces for external dependencies.
// Clean Architecture: These are the boundaries - usecases depend on these abstractions,
// not concrete implementations. Adapters implement these interfaces.
package ports

import (
	"context"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
)

// Gateway sends a conversation to the hosted chat-completion model.
type Gateway interface {
	// Complete returns the trimmed content of the first choice.
	Complete(ctx context.Context, messages []entities.Message) (string, error)
}

// TokenSource yields bearer tokens for the Gateway.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Document is one knowledge entry ready for embedding.
type Document struct {
	ID       string
	Text     string
	Metadata entities.Metadata
}

// Filter restricts index candidates to entries whose metadata equals every pair.
type Filter map[string]string

// EmbeddingIndex holds embedded knowledge entries and answers nearest-neighbor queries.
// The index embeds text itself with the model bound to its collection.
type EmbeddingIndex interface {
	// Query returns up to topK metadata records, nearest first. An empty index yields nil.
	Query(ctx context.Context, text string, topK int, filter Filter) ([]entities.Metadata, error)

	// Upsert embeds all docs in one batch and stores each under its ID, replacing
	// any previous entry. Nothing is stored when embedding fails.
	Upsert(ctx context.Context, docs ...Document) error

	// Delete removes every entry whose metadata matches filter and returns how many went.
	// An empty filter matches nothing.
	Delete(ctx context.Context, filter Filter) (int, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
}

// IncidentStore persists incident records with partial-field merge semantics.
// Every write is an idempotent upsert keyed by the incident ID.
type IncidentStore interface {
	// SaveContent sets the raw document text without touching structured fields.
	SaveContent(ctx context.Context, id, content string) error

	// MergeReport sets the fields present in report, leaving all others intact.
	MergeReport(ctx context.Context, id string, report entities.Report) error

	// Get returns the record, or ErrNotFound.
	Get(ctx context.Context, id string) (*entities.IncidentRecord, error)
}

// Normalizer rewrites domain synonyms to canonical vocabulary.
type Normalizer interface {
	Normalize(text string) string
}

// Lemmatizer splits text into word tokens and reduces each to its dictionary form.
type Lemmatizer interface {
	TokenizeAndLemmatize(text string) []string
}

// DocumentLoader reads knowledge-base files into entries ready for indexing.
type DocumentLoader interface {
	// Load reads all entries from the given path.
	Load(ctx context.Context, path string) ([]entities.KnowledgeEntry, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// DocumentParser extracts text from binary document formats (PDF, DOCX, etc).
type DocumentParser interface {
	// Parse extracts text content from document bytes.
	Parse(ctx context.Context, data []byte, filename string) (string, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf").
	SupportedFormats() []string
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	}
	return "unknown"
}
