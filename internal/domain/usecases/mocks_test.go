package usecases

import (
	"context"
	"strings"
	"sync"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
)

// mockIndex implements ports.EmbeddingIndex for testing
type mockIndex struct {
	mu       sync.Mutex
	results  []entities.Metadata
	queryFn  func(text string) ([]entities.Metadata, error)
	queries  []string
	upserted map[string]entities.Metadata
	texts    map[string]string
	deleted  []ports.Filter
	batches  int
}

func (m *mockIndex) Query(ctx context.Context, text string, topK int, filter ports.Filter) ([]entities.Metadata, error) {
	m.mu.Lock()
	m.queries = append(m.queries, text)
	m.mu.Unlock()

	results := m.results
	if m.queryFn != nil {
		var err error
		if results, err = m.queryFn(text); err != nil {
			return nil, err
		}
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *mockIndex) Upsert(ctx context.Context, docs ...ports.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upserted == nil {
		m.upserted = make(map[string]entities.Metadata)
		m.texts = make(map[string]string)
	}
	m.batches++
	for _, doc := range docs {
		m.upserted[doc.ID] = doc.Metadata
		m.texts[doc.ID] = doc.Text
	}
	return nil
}

func (m *mockIndex) Delete(ctx context.Context, filter ports.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, filter)
	removed := 0
	for id, meta := range m.upserted {
		if meta[entities.MetadataSource] == filter[entities.MetadataSource] {
			delete(m.upserted, id)
			delete(m.texts, id)
			removed++
		}
	}
	return removed, nil
}

func (m *mockIndex) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserted), nil
}

// mockGateway implements ports.Gateway with scripted replies. With err set, every
// call after the first okCalls fails.
type mockGateway struct {
	replies []string
	err     error
	okCalls int
	calls   [][]entities.Message
}

func (m *mockGateway) Complete(ctx context.Context, messages []entities.Message) (string, error) {
	m.calls = append(m.calls, messages)
	if m.err != nil && len(m.calls) > m.okCalls {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "mocked answer", nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

// mockStore implements ports.IncidentStore in memory
type mockStore struct {
	records map[string]*entities.IncidentRecord
	ops     []string
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]*entities.IncidentRecord)}
}

func (m *mockStore) record(id string) *entities.IncidentRecord {
	rec, ok := m.records[id]
	if !ok {
		rec = &entities.IncidentRecord{ID: id}
		m.records[id] = rec
	}
	return rec
}

func (m *mockStore) SaveContent(ctx context.Context, id, content string) error {
	m.ops = append(m.ops, "content")
	m.record(id).Content = content
	return nil
}

func (m *mockStore) MergeReport(ctx context.Context, id string, report entities.Report) error {
	m.ops = append(m.ops, "merge")
	rec := m.record(id)
	rec.Report = entities.MergeReports(rec.Report, report)
	return nil
}

func (m *mockStore) Get(ctx context.Context, id string) (*entities.IncidentRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return rec, nil
}

// identity collaborators for the preprocessor
type lowerNormalizer struct{}

func (lowerNormalizer) Normalize(text string) string { return strings.ToLower(text) }

type fieldsLemmatizer struct{}

func (fieldsLemmatizer) TokenizeAndLemmatize(text string) []string { return strings.Fields(text) }

// mockLoader implements ports.DocumentLoader
type mockLoader struct {
	entries map[string][]entities.KnowledgeEntry
}

func (m *mockLoader) Load(ctx context.Context, path string) ([]entities.KnowledgeEntry, error) {
	return m.entries[path], nil
}

func (m *mockLoader) SupportedExtensions() []string { return []string{".json"} }

// mockWatcher implements ports.FileWatcher over a prepared channel
type mockWatcher struct {
	events chan ports.FileEvent
}

func (m *mockWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	return m.events, nil
}

func (m *mockWatcher) Stop() error { return nil }

func solutions(texts ...string) []entities.Metadata {
	out := make([]entities.Metadata, len(texts))
	for i, t := range texts {
		out[i] = entities.Metadata{entities.MetadataSolution: t}
	}
	return out
}
