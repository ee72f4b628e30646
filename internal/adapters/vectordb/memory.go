package vectordb

import (
	"context"
	"fmt"
	"sync"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
)

type memoryEntry struct {
	metadata  entities.Metadata
	embedding []float32
}

// InMemoryIndex is a non-persistent ports.EmbeddingIndex with the same ranking
// and filter semantics as Collection.
type InMemoryIndex struct {
	mu       sync.RWMutex
	embedder ports.Embedder
	entries  map[string]memoryEntry
}

// NewInMemoryIndex creates an empty in-memory index.
func NewInMemoryIndex(embedder ports.Embedder) *InMemoryIndex {
	return &InMemoryIndex{
		embedder: embedder,
		entries:  make(map[string]memoryEntry),
	}
}

// Upsert embeds docs in one batch and stores each under its ID.
func (s *InMemoryIndex) Upsert(ctx context.Context, docs ...ports.Document) error {
	embeddings, err := embedDocuments(ctx, s.embedder, docs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		copied := make(entities.Metadata, len(doc.Metadata))
		for k, v := range doc.Metadata {
			copied[k] = v
		}
		s.entries[doc.ID] = memoryEntry{metadata: copied, embedding: embeddings[i]}
	}
	return nil
}

// Query returns the metadata of the nearest entries matching filter.
func (s *InMemoryIndex) Query(ctx context.Context, text string, topK int, filter ports.Filter) ([]entities.Metadata, error) {
	if topK <= 0 {
		return nil, nil
	}
	if n, _ := s.Count(ctx); n == 0 {
		return nil, nil
	}

	query, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []scored
	for id, e := range s.entries {
		if !matches(e.metadata, filter) {
			continue
		}
		candidates = append(candidates, scored{id: id, metadata: e.metadata, score: cosineSimilarity(query, e.embedding)})
	}
	return rank(candidates, topK), nil
}

// Delete removes entries matching filter.
func (s *InMemoryIndex) Delete(ctx context.Context, filter ports.Filter) (int, error) {
	if len(filter) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if matches(e.metadata, filter) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored entries.
func (s *InMemoryIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func embedDocuments(ctx context.Context, embedder ports.Embedder, docs []ports.Document) ([][]float32, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	embeddings, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	if len(embeddings) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(embeddings), len(docs))
	}
	return embeddings, nil
}

func matches(metadata entities.Metadata, filter ports.Filter) bool {
	for k, v := range filter {
		if got, ok := metadata[k]; !ok || got != v {
			return false
		}
	}
	return true
}
