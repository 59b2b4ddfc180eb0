package lumen

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// cachedEmbedding memoizes query embeddings. Document batches pass through
// uncached; only EmbedQuery consults the cache.
type cachedEmbedding struct {
	inner EmbeddingProvider
	cache *ristretto.Cache
}

// WithQueryCache wraps e with an in-process cache of up to maxEntries query
// vectors, so repeated questions skip the embedding call.
func WithQueryCache(e EmbeddingProvider, maxEntries int64) (EmbeddingProvider, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries, // cost counts entries, not bytes
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	return &cachedEmbedding{inner: e, cache: cache}, nil
}

func (c *cachedEmbedding) Name() string    { return c.inner.Name() }
func (c *cachedEmbedding) Dimensions() int { return c.inner.Dimensions() }

func (c *cachedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.Embed(ctx, texts)
}

func (c *cachedEmbedding) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := EmbedQuery(ctx, c.inner, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	c.cache.Wait()
	return vec, nil
}

var (
	_ EmbeddingProvider = (*cachedEmbedding)(nil)
	_ QueryEmbedder     = (*cachedEmbedding)(nil)
)
