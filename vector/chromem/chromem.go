// Package chromem implements lumen.VectorIndex on top of chromem-go, an
// embedded pure-Go vector database. It is a drop-in replacement for
// vector.Index: scores use lumen.CosineSimilarity on the embeddings as added,
// and equal scores keep insertion order.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/nevindra/lumen"
)

// Index stores entries in a single chromem-go collection.
type Index struct {
	col *chromem.Collection

	mu      sync.Mutex
	entries map[string]stored
	dims    int
	nextSeq int
}

// stored keeps what chromem-go does not: the embedding before normalization
// and the insertion sequence.
type stored struct {
	seq       int
	embedding []float32
}

// New creates an index backed by a fresh in-memory chromem-go database.
func New(name string) (*Index, error) {
	if name == "" {
		name = "lumen"
	}
	db := chromem.NewDB()
	col, err := db.CreateCollection(
		name,
		nil, // embeddings are always supplied by the caller
		nil, // default cosine similarity
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{col: col, entries: make(map[string]stored)}, nil
}

func (x *Index) Add(ctx context.Context, entry lumen.IndexEntry) error {
	if len(entry.Embedding) == 0 {
		return fmt.Errorf("add %q: empty embedding: %w", entry.ChunkID, lumen.ErrDimensionMismatch)
	}
	emb := append([]float32(nil), entry.Embedding...)

	x.mu.Lock()
	if _, ok := x.entries[entry.ChunkID]; ok {
		x.mu.Unlock()
		return fmt.Errorf("add %q: %w", entry.ChunkID, lumen.ErrDuplicateEntry)
	}
	if x.dims == 0 {
		x.dims = len(emb)
	} else if len(emb) != x.dims {
		x.mu.Unlock()
		return fmt.Errorf("add %q: got %d dimensions, index has %d: %w",
			entry.ChunkID, len(emb), x.dims, lumen.ErrDimensionMismatch)
	}
	x.entries[entry.ChunkID] = stored{seq: x.nextSeq, embedding: emb}
	x.nextSeq++
	x.mu.Unlock()

	doc := chromem.Document{
		ID:        entry.ChunkID,
		Content:   entry.Text,
		Embedding: append([]float32(nil), emb...),
		Metadata:  entry.Metadata,
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		x.mu.Lock()
		delete(x.entries, entry.ChunkID)
		x.mu.Unlock()
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns the min(k, Len()) most similar entries. chromem-go picks the
// candidates; ranking is redone here so that zero vectors score 0 instead of
// NaN and ties resolve by insertion order.
func (x *Index) Query(ctx context.Context, q []float32, k int) ([]lumen.ScoredEntry, error) {
	n := x.col.Count()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	x.mu.Lock()
	dims := x.dims
	x.mu.Unlock()
	if len(q) != dims {
		return nil, fmt.Errorf("query: got %d dimensions, index has %d: %w", len(q), dims, lumen.ErrDimensionMismatch)
	}
	// chromem-go requires nResults <= collection size. All documents are
	// fetched because its own top-k is unstable on equal scores.
	results, err := x.col.QueryEmbedding(ctx, q, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	type ranked struct {
		entry lumen.ScoredEntry
		seq   int
	}
	x.mu.Lock()
	out := make([]ranked, 0, len(results))
	for _, r := range results {
		s, ok := x.entries[r.ID]
		if !ok {
			continue
		}
		out = append(out, ranked{
			entry: lumen.ScoredEntry{
				IndexEntry: lumen.IndexEntry{
					ChunkID:   r.ID,
					Embedding: s.embedding,
					Text:      r.Content,
					Metadata:  r.Metadata,
				},
				Score: lumen.CosineSimilarity(q, s.embedding),
			},
			seq: s.seq,
		})
	}
	x.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].entry.Score != out[j].entry.Score {
			return out[i].entry.Score > out[j].entry.Score
		}
		return out[i].seq < out[j].seq
	})
	if k > len(out) {
		k = len(out)
	}
	scored := make([]lumen.ScoredEntry, k)
	for i := range scored {
		scored[i] = out[i].entry
	}
	return scored, nil
}

func (x *Index) Len() int { return x.col.Count() }

var _ lumen.VectorIndex = (*Index)(nil)
