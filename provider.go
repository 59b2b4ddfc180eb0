package lumen

import (
	"context"
	"fmt"
)

// Provider abstracts the LLM backend. Sampling parameters (model,
// temperature, endpoint) are fixed at construction time.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai", "anthropic").
	Name() string
}

// EmbeddingProvider abstracts text embedding.
type EmbeddingProvider interface {
	// Embed returns embedding vectors for the given texts, one per text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}

// QueryEmbedder is implemented by embedding providers that embed search
// queries differently from documents, or cache query vectors.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedQuery embeds a single query text, preferring the provider's
// QueryEmbedder implementation when it has one.
func EmbedQuery(ctx context.Context, e EmbeddingProvider, text string) ([]float32, error) {
	if q, ok := e.(QueryEmbedder); ok {
		return q.EmbedQuery(ctx, text)
	}
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, &ErrProvider{Provider: e.Name(), Message: fmt.Sprintf("expected 1 embedding, got %d", len(vecs))}
	}
	return vecs[0], nil
}
