package embedding

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
	"github.com/0xcro3dile/incidentrag-go/internal/metrics"
)

// Limited bounds how many embedding calls run at once across all requests.
type Limited struct {
	next ports.Embedder
	sem  *semaphore.Weighted
}

// NewLimited wraps next. maxConcurrent <= 0 leaves next unbounded.
func NewLimited(next ports.Embedder, maxConcurrent int) ports.Embedder {
	if maxConcurrent <= 0 {
		return next
	}
	return &Limited{next: next, sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Embed waits for a slot, honoring ctx, then delegates.
func (l *Limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	metrics.EmbeddingInFlight.Inc()
	defer metrics.EmbeddingInFlight.Dec()

	return l.next.Embed(ctx, text)
}

// EmbedBatch holds one slot for the whole batch.
func (l *Limited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	metrics.EmbeddingInFlight.Inc()
	defer metrics.EmbeddingInFlight.Dec()

	return l.next.EmbedBatch(ctx, texts)
}
