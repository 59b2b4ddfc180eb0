// Package rag answers questions from ingested documents: it retrieves the
// chunks nearest to a question and asks the model to answer from them alone.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nevindra/lumen"
	"github.com/nevindra/lumen/ingest"
)

// DefaultTopK is the number of chunks retrieved when Answer is called with k <= 0.
const DefaultTopK = 3

// ContextDelimiter separates retrieved chunks in the augmented prompt.
const ContextDelimiter = "\n\n---\n\n"

// DefaultInstruction heads the augmented prompt.
const DefaultInstruction = "Answer the question using only the context below. " +
	"If the context does not contain enough information to answer, say so plainly instead of guessing."

// Retrieved is one chunk that was placed in the prompt, with its provenance.
type Retrieved struct {
	ChunkID  string
	Text     string
	Metadata map[string]string
	Score    float32
}

// Answer is the model's reply plus the chunks it was grounded on.
type Answer struct {
	Text      string
	Retrieved []Retrieved
	Usage     lumen.Usage
}

// Pipeline ties an embedding provider, a vector index and a model provider
// together. The index is only read at query time.
type Pipeline struct {
	provider    lumen.Provider
	embedding   lumen.EmbeddingProvider
	index       lumen.VectorIndex
	ingestor    *ingest.Ingestor
	instruction string
	minScore    float32
	logger      *slog.Logger
	tracer      lumen.Tracer
}

// Option configures a Pipeline.
type Option func(*config)

type config struct {
	instruction string
	minScore    float32
	logger      *slog.Logger
	tracer      lumen.Tracer
	ingestOpts  []ingest.Option
}

// WithInstruction replaces DefaultInstruction.
func WithInstruction(s string) Option {
	return func(c *config) { c.instruction = s }
}

// WithMinScore drops retrieved chunks scoring below score. Default is 0 (no filtering).
func WithMinScore(score float32) Option {
	return func(c *config) { c.minScore = score }
}

// WithLogger sets the structured logger, shared with the ingestor.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTracer sets the tracer, shared with the ingestor.
func WithTracer(t lumen.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

// WithIngestOptions passes options through to the underlying ingest.Ingestor.
func WithIngestOptions(opts ...ingest.Option) Option {
	return func(c *config) { c.ingestOpts = append(c.ingestOpts, opts...) }
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler            { return d }

// New creates a Pipeline.
func New(provider lumen.Provider, embedding lumen.EmbeddingProvider, index lumen.VectorIndex, opts ...Option) *Pipeline {
	cfg := config{instruction: DefaultInstruction}
	for _, o := range opts {
		o(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = nopLogger
	}
	ingestOpts := append([]ingest.Option{ingest.WithLogger(logger), ingest.WithTracer(cfg.tracer)}, cfg.ingestOpts...)
	return &Pipeline{
		provider:    provider,
		embedding:   embedding,
		index:       index,
		ingestor:    ingest.NewIngestor(index, embedding, ingestOpts...),
		instruction: cfg.instruction,
		minScore:    cfg.minScore,
		logger:      logger,
		tracer:      cfg.tracer,
	}
}

// Ingest chunks doc, embeds the chunks and adds them to the index.
func (p *Pipeline) Ingest(ctx context.Context, doc lumen.Document, chunkSize, overlap int) (ingest.Result, error) {
	return p.ingestor.Ingest(ctx, doc, chunkSize, overlap)
}

// IngestFile loads path and ingests every document it yields with the given
// chunk parameters. Unsupported formats fail before any embedding call.
func (p *Pipeline) IngestFile(ctx context.Context, path string, chunkSize, overlap int) ([]ingest.Result, error) {
	docs, err := ingest.LoadFile(path)
	if err != nil {
		return nil, err
	}
	results := make([]ingest.Result, 0, len(docs))
	for _, doc := range docs {
		res, err := p.Ingest(ctx, doc, chunkSize, overlap)
		if err != nil {
			return results, fmt.Errorf("ingest %s: %w", path, err)
		}
		results = append(results, res)
	}
	p.logger.Info("file ingested", "path", path, "documents", len(results))
	return results, nil
}

// Retrieve returns the k chunks most similar to question, best first.
func (p *Pipeline) Retrieve(ctx context.Context, question string, k int) ([]Retrieved, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	q, err := lumen.EmbedQuery(ctx, p.embedding, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	hits, err := p.index.Query(ctx, q, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	out := make([]Retrieved, 0, len(hits))
	for _, h := range hits {
		if h.Score < p.minScore {
			continue
		}
		out = append(out, Retrieved{ChunkID: h.ChunkID, Text: h.Text, Metadata: h.Metadata, Score: h.Score})
	}
	return out, nil
}

// Answer retrieves the top k chunks for question (k <= 0 means DefaultTopK)
// and asks the model to answer from them. An empty index fails with
// lumen.ErrEmptyIndex before any provider call.
func (p *Pipeline) Answer(ctx context.Context, question string, k int) (Answer, error) {
	ctx, span := lumen.StartSpan(ctx, p.tracer, "rag.answer", lumen.IntAttr("rag.top_k", k))
	defer span.End()

	if p.index.Len() == 0 {
		return Answer{}, lumen.ErrEmptyIndex
	}
	retrieved, err := p.Retrieve(ctx, question, k)
	if err != nil {
		span.Error(err)
		return Answer{}, err
	}
	span.SetAttr(lumen.IntAttr("rag.retrieved", len(retrieved)))
	p.logger.Debug("chunks retrieved", "count", len(retrieved))

	resp, err := p.provider.Chat(ctx, lumen.ChatRequest{
		Messages: []lumen.ChatMessage{lumen.UserMessage(p.buildPrompt(question, retrieved))},
	})
	if err != nil {
		span.Error(err)
		return Answer{}, fmt.Errorf("answer: %w", err)
	}
	return Answer{Text: strings.TrimSpace(resp.Content), Retrieved: retrieved, Usage: resp.Usage}, nil
}

func (p *Pipeline) buildPrompt(question string, retrieved []Retrieved) string {
	texts := make([]string, len(retrieved))
	for i, r := range retrieved {
		texts[i] = r.Text
	}
	var sb strings.Builder
	sb.WriteString(p.instruction)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(strings.Join(texts, ContextDelimiter))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}
