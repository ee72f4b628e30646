package vectordb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
)

// axisEmbedder maps each known word to its own axis.
type axisEmbedder struct {
	calls   int
	batches int
	err     error
}

var axes = []string{"диск", "сеть", "реплика"}

func (e *axisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, len(axes))
	for i, word := range axes {
		vec[i] = float32(strings.Count(text, word))
	}
	return vec, nil
}

func (e *axisEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newTestCollection(t *testing.T, embedder ports.Embedder) (*SQLiteStore, *Collection) {
	t.Helper()
	store, err := OpenSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	col, err := store.CreateOrGet(context.Background(), "postgres", "test-model", embedder)
	require.NoError(t, err)
	return store, col
}

func TestCollection_UpsertAndQuery(t *testing.T) {
	_, col := newTestCollection(t, &axisEmbedder{})
	ctx := context.Background()

	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "a", Text: "диск переполнен", Metadata: entities.Metadata{"solution": "почистить логи"}}))
	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "b", Text: "сеть недоступна", Metadata: entities.Metadata{"solution": "проверить маршруты"}}))
	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "c", Text: "реплика отстала", Metadata: entities.Metadata{"solution": "пересоздать слот"}}))

	results, err := col.Query(ctx, "сеть", 2, nil)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "проверить маршруты", results[0].Solution())
}

func TestCollection_EmptyIndexReturnsNothing(t *testing.T) {
	embedder := &axisEmbedder{}
	_, col := newTestCollection(t, embedder)

	results, err := col.Query(context.Background(), "диск", 3, nil)

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, embedder.calls, "no embedding call for an empty index")
}

func TestCollection_UpsertReplaces(t *testing.T) {
	_, col := newTestCollection(t, &axisEmbedder{})
	ctx := context.Background()

	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "a", Text: "диск", Metadata: entities.Metadata{"solution": "old"}}))
	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "a", Text: "диск", Metadata: entities.Metadata{"solution": "new"}}))

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := col.Query(ctx, "диск", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Solution())
}

func TestCollection_FilterBeforeRanking(t *testing.T) {
	_, col := newTestCollection(t, &axisEmbedder{})
	ctx := context.Background()

	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "a", Text: "диск", Metadata: entities.Metadata{"solution": "s1", "team": "dba"}}))
	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "b", Text: "сеть", Metadata: entities.Metadata{"solution": "s2", "team": "net"}}))

	results, err := col.Query(ctx, "диск", 1, ports.Filter{"team": "net"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s2", results[0].Solution(), "the filtered-out nearest entry must not win")

	results, err = col.Query(ctx, "диск", 1, ports.Filter{"team": "nobody"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCollection_DeleteByFilter(t *testing.T) {
	_, col := newTestCollection(t, &axisEmbedder{})
	ctx := context.Background()

	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "a", Text: "диск", Metadata: entities.Metadata{"solution": "s", "source": "kb1.json"}}))
	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "b", Text: "сеть", Metadata: entities.Metadata{"solution": "s", "source": "kb1.json"}}))
	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "c", Text: "сеть", Metadata: entities.Metadata{"solution": "s", "source": "kb2.json"}}))

	n, err := col.Delete(ctx, ports.Filter{"source": "kb1.json"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = col.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "empty filter deletes nothing")

	count, _ := col.Count(ctx)
	assert.Equal(t, 1, count)

	_, err = col.Delete(ctx, ports.Filter{`bad"key`: "x"})
	assert.Error(t, err)
}

func TestCollection_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenSQLiteStore(dir)
	require.NoError(t, err)
	col, err := store.CreateOrGet(ctx, "postgres", "m1", &axisEmbedder{})
	require.NoError(t, err)
	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "a", Text: "диск", Metadata: entities.Metadata{"solution": "persisted"}}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.CreateOrGet(ctx, "postgres", "other-model", &axisEmbedder{})
	assert.ErrorContains(t, err, "embedding model")

	col, err = reopened.CreateOrGet(ctx, "postgres", "m1", &axisEmbedder{})
	require.NoError(t, err)
	results, err := col.Query(ctx, "диск", 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persisted", results[0].Solution())
}

func TestCollection_CollectionsAreIsolated(t *testing.T) {
	store, col := newTestCollection(t, &axisEmbedder{})
	ctx := context.Background()
	require.NoError(t, col.Upsert(ctx, ports.Document{ID: "a", Text: "диск", Metadata: entities.Metadata{"solution": "s"}}))

	other, err := store.CreateOrGet(ctx, "mysql", "test-model", &axisEmbedder{})
	require.NoError(t, err)

	n, err := other.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCollection_EmbeddingError(t *testing.T) {
	_, col := newTestCollection(t, &axisEmbedder{err: errors.New("model down")})

	err := col.Upsert(context.Background(), ports.Document{ID: "a", Text: "диск", Metadata: entities.Metadata{}})
	assert.ErrorContains(t, err, "model down")
}

func TestCollection_UpsertBatchesEmbeddings(t *testing.T) {
	embedder := &axisEmbedder{}
	_, col := newTestCollection(t, embedder)
	ctx := context.Background()

	require.NoError(t, col.Upsert(ctx,
		ports.Document{ID: "a", Text: "диск", Metadata: entities.Metadata{"solution": "s1"}},
		ports.Document{ID: "b", Text: "сеть", Metadata: entities.Metadata{"solution": "s2"}},
		ports.Document{ID: "c", Text: "реплика", Metadata: entities.Metadata{"solution": "s3"}},
	))
	assert.Equal(t, 1, embedder.batches)

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := col.Query(ctx, "сеть", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s2", results[0].Solution())
}

func TestCollection_UpsertNothing(t *testing.T) {
	embedder := &axisEmbedder{}
	_, col := newTestCollection(t, embedder)

	require.NoError(t, col.Upsert(context.Background()))
	assert.Zero(t, embedder.batches)
}

func TestCollection_FailedBatchStoresNothing(t *testing.T) {
	_, col := newTestCollection(t, &shortEmbedder{})
	ctx := context.Background()

	err := col.Upsert(ctx,
		ports.Document{ID: "a", Text: "диск", Metadata: entities.Metadata{"solution": "s1"}},
		ports.Document{ID: "b", Text: "сеть", Metadata: entities.Metadata{"solution": "s2"}},
	)
	assert.ErrorContains(t, err, "1 vectors for 2 documents")

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// shortEmbedder drops the last vector of every batch.
type shortEmbedder struct{}

func (shortEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

func (shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts)-1)
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	assert.Equal(t, 1.0, cosineSimilarity(a, b))
	assert.Equal(t, 0.0, cosineSimilarity(a, c))
	assert.Equal(t, 0.0, cosineSimilarity(a, []float32{1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity(a, []float32{0, 0, 0}))
}
