package ingest

import (
	"context"
	"log/slog"

	"github.com/nevindra/lumen"
)

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunker sets the chunker used by IngestDocument and IngestFile.
func WithChunker(c Chunker) Option {
	return func(ing *Ingestor) { ing.chunker = c }
}

// WithLoader sets the loader used by IngestFile.
func WithLoader(l *Loader) Option {
	return func(ing *Ingestor) { ing.loader = l }
}

// WithBatchSize sets the number of chunks per Embed() call (default 64).
func WithBatchSize(n int) Option {
	return func(ing *Ingestor) { ing.batchSize = n }
}

// WithConcurrency sets how many Embed() calls may run at once (default 4).
func WithConcurrency(n int) Option {
	return func(ing *Ingestor) { ing.concurrency = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(ing *Ingestor) {
		if l != nil {
			ing.logger = l
		}
	}
}

// WithTracer sets the tracer for ingestion spans.
func WithTracer(t lumen.Tracer) Option {
	return func(ing *Ingestor) { ing.tracer = t }
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler            { return d }
