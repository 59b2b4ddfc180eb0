package lumen

import (
	"context"
	"math"
)

// VectorIndex stores chunk embeddings and answers top-k similarity queries.
// Implementations: vector (exhaustive, in-memory) and vector/chromem.
type VectorIndex interface {
	// Add stores entry. It must be safe to call from concurrent ingestion workers.
	Add(ctx context.Context, entry IndexEntry) error
	// Query returns the min(k, Len()) entries most similar to q, best first.
	Query(ctx context.Context, q []float32, k int) ([]ScoredEntry, error)
	// Len returns the number of stored entries.
	Len() int
}

// cosineEpsilon keeps CosineSimilarity finite for zero vectors.
const cosineEpsilon = 1e-10

// CosineSimilarity returns dot(a,b) / (|a|*|b| + 1e-10). Vectors of different
// length score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	return float32(dot / (math.Sqrt(normA)*math.Sqrt(normB) + cosineEpsilon))
}
