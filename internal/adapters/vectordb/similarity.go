package vectordb

import (
	"math"
	"sort"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
)

type scored struct {
	id       string
	metadata entities.Metadata
	score    float64
}

// rank orders candidates by descending similarity, ties by id, and keeps topK.
func rank(candidates []scored, topK int) []entities.Metadata {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]entities.Metadata, len(candidates))
	for i, c := range candidates {
		results[i] = c.metadata
	}
	return results
}

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
