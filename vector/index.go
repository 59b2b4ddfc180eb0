// Package vector provides an exhaustive in-memory lumen.VectorIndex.
//
// Every query scores all stored entries with cosine similarity, so cost
// grows linearly with the index. Contents are not persisted.
package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nevindra/lumen"
)

// Index is an exhaustive cosine-similarity index. It is safe for
// concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries []lumen.IndexEntry // insertion order
	ids     map[string]struct{}
	dims    int // fixed by the first Add
}

// New returns an empty index.
func New() *Index {
	return &Index{ids: make(map[string]struct{})}
}

// Add stores entry. Duplicate chunk IDs and embeddings whose dimension
// differs from earlier entries are rejected.
func (x *Index) Add(_ context.Context, entry lumen.IndexEntry) error {
	if len(entry.Embedding) == 0 {
		return fmt.Errorf("add %q: empty embedding: %w", entry.ChunkID, lumen.ErrDimensionMismatch)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.ids[entry.ChunkID]; ok {
		return fmt.Errorf("add %q: %w", entry.ChunkID, lumen.ErrDuplicateEntry)
	}
	if x.dims == 0 {
		x.dims = len(entry.Embedding)
	} else if len(entry.Embedding) != x.dims {
		return fmt.Errorf("add %q: got %d dimensions, index has %d: %w",
			entry.ChunkID, len(entry.Embedding), x.dims, lumen.ErrDimensionMismatch)
	}
	entry.Embedding = append([]float32(nil), entry.Embedding...)
	x.entries = append(x.entries, entry)
	x.ids[entry.ChunkID] = struct{}{}
	return nil
}

// Query returns the min(k, Len()) most similar entries by descending score.
// Equal scores keep insertion order. An empty index yields no results.
func (x *Index) Query(_ context.Context, q []float32, k int) ([]lumen.ScoredEntry, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if k <= 0 || len(x.entries) == 0 {
		return nil, nil
	}
	if len(q) != x.dims {
		return nil, fmt.Errorf("query: got %d dimensions, index has %d: %w", len(q), x.dims, lumen.ErrDimensionMismatch)
	}

	scored := make([]lumen.ScoredEntry, len(x.entries))
	for i, e := range x.entries {
		scored[i] = lumen.ScoredEntry{IndexEntry: e, Score: lumen.CosineSimilarity(q, e.Embedding)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

var _ lumen.VectorIndex = (*Index)(nil)
