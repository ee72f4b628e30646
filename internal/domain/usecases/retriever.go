// Package usecases contains application business rules.
// Clean Architecture: Usecases orchestrate entities and depend on port interfaces.
package usecases

import (
	"context"
	"fmt"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
	"github.com/0xcro3dile/incidentrag-go/internal/metrics"
)

// DefaultTopK is the number of similar solutions retrieved per question.
const DefaultTopK = 3

// Retriever finds historical solutions similar to a query.
type Retriever struct {
	index ports.EmbeddingIndex
	topK  int
}

// NewRetriever creates a Retriever over the given index.
func NewRetriever(index ports.EmbeddingIndex, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{index: index, topK: topK}
}

// FindSimilarSolutions returns solution texts nearest to query, most similar first.
// The query is embedded as-is. Entries without a non-empty solution are dropped.
// topK <= 0 uses the retriever default.
func (r *Retriever) FindSimilarSolutions(ctx context.Context, query string, topK int, filter ports.Filter) ([]string, error) {
	if topK <= 0 {
		topK = r.topK
	}

	results, err := r.index.Query(ctx, query, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	solutions := make([]string, 0, len(results))
	for _, meta := range results {
		if sol := meta.Solution(); sol != "" {
			solutions = append(solutions, sol)
		}
	}

	metrics.RetrievalResults.Observe(float64(len(solutions)))
	return solutions, nil
}
