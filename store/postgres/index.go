package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/lumen"
)

// Index implements lumen.VectorIndex on a pgvector table. Entries are
// scoped by collection so several indexes can share one table.
type Index struct {
	pool       *pgxpool.Pool
	collection string
	dims       int
	efSearch   int
	count      atomic.Int64
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithCollection sets the collection name (default "lumen").
func WithCollection(name string) IndexOption {
	return func(x *Index) { x.collection = name }
}

// WithEFSearch sets the HNSW ef_search parameter (query-time candidate list
// size). Higher values improve recall at the cost of latency. Default:
// pgvector's 40.
func WithEFSearch(ef int) IndexOption {
	return func(x *Index) { x.efSearch = ef }
}

var _ lumen.VectorIndex = (*Index)(nil)

// NewIndex creates an index of dims-dimensional vectors over pool.
func NewIndex(pool *pgxpool.Pool, dims int, opts ...IndexOption) *Index {
	x := &Index{pool: pool, collection: "lumen", dims: dims}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Init creates the pgvector extension, the chunks table and its HNSW index,
// then loads the current entry count. Safe to call multiple times.
func (x *Index) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS lumen_chunks (
			collection TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			text TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL,
			seq BIGSERIAL,
			PRIMARY KEY (collection, chunk_id)
		)`, x.dims),
		`CREATE INDEX IF NOT EXISTS lumen_chunks_embedding_idx ON lumen_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := x.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init index: %w", err)
		}
	}
	var n int64
	if err := x.pool.QueryRow(ctx,
		`SELECT count(*) FROM lumen_chunks WHERE collection = $1`, x.collection).Scan(&n); err != nil {
		return fmt.Errorf("postgres: count chunks: %w", err)
	}
	x.count.Store(n)
	return nil
}

// Add inserts entry. A chunk ID already in the collection is rejected with
// lumen.ErrDuplicateEntry.
func (x *Index) Add(ctx context.Context, entry lumen.IndexEntry) error {
	if len(entry.Embedding) != x.dims {
		return fmt.Errorf("add %q: got %d dimensions, index has %d: %w",
			entry.ChunkID, len(entry.Embedding), x.dims, lumen.ErrDimensionMismatch)
	}
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("add %q: marshal metadata: %w", entry.ChunkID, err)
	}
	tag, err := x.pool.Exec(ctx,
		`INSERT INTO lumen_chunks (collection, chunk_id, text, metadata, embedding)
		 VALUES ($1, $2, $3, $4::jsonb, $5::vector)
		 ON CONFLICT (collection, chunk_id) DO NOTHING`,
		x.collection, entry.ChunkID, entry.Text, string(meta), serializeEmbedding(entry.Embedding))
	if err != nil {
		return fmt.Errorf("postgres: add chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("add %q: %w", entry.ChunkID, lumen.ErrDuplicateEntry)
	}
	x.count.Add(1)
	return nil
}

// Query returns the k nearest entries by cosine similarity. Equal distances
// fall back to insertion order.
func (x *Index) Query(ctx context.Context, q []float32, k int) ([]lumen.ScoredEntry, error) {
	if k <= 0 || x.Len() == 0 {
		return nil, nil
	}
	if len(q) != x.dims {
		return nil, fmt.Errorf("query: got %d dimensions, index has %d: %w", len(q), x.dims, lumen.ErrDimensionMismatch)
	}

	tx, err := x.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin query: %w", err)
	}
	defer tx.Rollback(ctx)

	if x.efSearch > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", x.efSearch)); err != nil {
			return nil, fmt.Errorf("postgres: set ef_search: %w", err)
		}
	}

	rows, err := tx.Query(ctx,
		`SELECT chunk_id, text, metadata, 1 - (embedding <=> $1::vector) AS score
		 FROM lumen_chunks
		 WHERE collection = $2
		 ORDER BY embedding <=> $1::vector, seq
		 LIMIT $3`,
		serializeEmbedding(q), x.collection, k)
	if err != nil {
		return nil, fmt.Errorf("postgres: query chunks: %w", err)
	}
	defer rows.Close()

	var results []lumen.ScoredEntry
	for rows.Next() {
		var (
			e    lumen.ScoredEntry
			meta []byte
			s    float64
		)
		if err := rows.Scan(&e.ChunkID, &e.Text, &meta, &s); err != nil {
			return nil, fmt.Errorf("postgres: scan chunk: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: decode metadata of %q: %w", e.ChunkID, err)
			}
		}
		e.Score = float32(s)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate chunks: %w", err)
	}
	return results, nil
}

// Len returns the number of entries in the collection as of Init plus the
// entries added through this Index.
func (x *Index) Len() int { return int(x.count.Load()) }

// serializeEmbedding renders a vector in pgvector's text format.
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
