package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/nevindra/lumen"
)

// Metadata keys added to every index entry.
const (
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
	MetaOffset     = "offset"
)

const (
	defaultBatchSize   = 64
	defaultConcurrency = 4
)

// Result holds the outcome of ingesting one document.
type Result struct {
	DocumentID string
	Chunks     int
	// Overflowed counts chunks that were hard-cut without a natural break.
	Overflowed int
}

// Ingestor provides end-to-end ingestion: load → chunk → embed → index.
type Ingestor struct {
	index       lumen.VectorIndex
	embedding   lumen.EmbeddingProvider
	chunker     Chunker
	loader      *Loader
	batchSize   int
	concurrency int
	logger      *slog.Logger
	tracer      lumen.Tracer
}

// NewIngestor creates an Ingestor with sensible defaults.
func NewIngestor(index lumen.VectorIndex, emb lumen.EmbeddingProvider, opts ...Option) *Ingestor {
	ing := &Ingestor{
		index:       index,
		embedding:   emb,
		chunker:     NewRecursiveChunker(),
		loader:      NewLoader(),
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		logger:      nopLogger,
	}
	for _, o := range opts {
		o(ing)
	}
	if ing.batchSize <= 0 {
		ing.batchSize = defaultBatchSize
	}
	if ing.concurrency <= 0 {
		ing.concurrency = defaultConcurrency
	}
	return ing
}

// Ingest splits doc with the given parameters, embeds every chunk and adds
// the chunks to the index in document order. Nothing is added unless every
// batch embeds successfully.
func (ing *Ingestor) Ingest(ctx context.Context, doc lumen.Document, chunkSize, overlap int) (Result, error) {
	doc = withID(doc)
	chunks, err := Split(doc, chunkSize, overlap)
	if err != nil {
		return Result{}, err
	}
	return ing.ingestChunks(ctx, doc, chunks)
}

// IngestDocument ingests doc using the configured chunker.
func (ing *Ingestor) IngestDocument(ctx context.Context, doc lumen.Document) (Result, error) {
	doc = withID(doc)
	chunks, err := ing.chunker.Chunk(doc)
	if err != nil {
		return Result{}, err
	}
	return ing.ingestChunks(ctx, doc, chunks)
}

// IngestFile loads path and ingests each resulting document. Unsupported
// formats fail with ErrUnsupportedFormat before any embedding call.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) ([]Result, error) {
	docs, err := ing.loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		res, err := ing.IngestDocument(ctx, doc)
		if err != nil {
			return results, fmt.Errorf("ingest %s: %w", path, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (ing *Ingestor) ingestChunks(ctx context.Context, doc lumen.Document, chunks []lumen.Chunk) (Result, error) {
	ctx, span := lumen.StartSpan(ctx, ing.tracer, "ingest.document",
		lumen.StringAttr("document.id", doc.ID),
		lumen.IntAttr("chunk.count", len(chunks)))
	defer span.End()

	res := Result{DocumentID: doc.ID, Chunks: len(chunks)}
	if len(chunks) == 0 {
		return res, nil
	}

	vecs, err := ing.batchEmbed(ctx, chunks)
	if err != nil {
		span.Error(err)
		return Result{}, err
	}

	for i, c := range chunks {
		if c.Overflow {
			res.Overflowed++
		}
		if err := ing.index.Add(ctx, lumen.IndexEntry{
			ChunkID:   c.ID,
			Embedding: vecs[i],
			Text:      c.Text,
			Metadata:  entryMetadata(doc, c),
		}); err != nil {
			span.Error(err)
			return Result{}, fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}

	ing.logger.Info("document ingested",
		"document_id", doc.ID,
		"chunks", res.Chunks,
		"overflowed", res.Overflowed)
	return res, nil
}

// batchEmbed embeds chunks in batches of ing.batchSize on a pool of
// ing.concurrency workers. The returned vectors are in chunk order.
func (ing *Ingestor) batchEmbed(ctx context.Context, chunks []lumen.Chunk) ([][]float32, error) {
	vecs := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.concurrency)

	for i := 0; i < len(chunks); i += ing.batchSize {
		start, end := i, min(i+ing.batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, end-start)
			for j, c := range chunks[start:end] {
				texts[j] = c.Text
			}
			embeddings, err := ing.embedding.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
			}
			if len(embeddings) != len(texts) {
				return fmt.Errorf("embed batch %d-%d: expected %d vectors, got %d",
					start, end, len(texts), len(embeddings))
			}
			copy(vecs[start:end], embeddings)
			ing.logger.Debug("batch embedded", "start", start, "end", end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

// withID gives doc a generated ID when it has none, so chunk IDs, the result
// and entry metadata all name the same document.
func withID(doc lumen.Document) lumen.Document {
	if doc.ID == "" {
		doc.ID = lumen.NewID()
	}
	return doc
}

func entryMetadata(doc lumen.Document, c lumen.Chunk) map[string]string {
	m := make(map[string]string, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		m[k] = v
	}
	m[MetaDocumentID] = doc.ID
	m[MetaChunkIndex] = strconv.Itoa(c.Index)
	m[MetaOffset] = strconv.Itoa(c.StartOffset)
	return m
}
