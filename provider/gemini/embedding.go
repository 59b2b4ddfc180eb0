package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/nevindra/lumen"
)

// Embedding implements lumen.EmbeddingProvider for Gemini embedding models.
// Each Embed call is one batchEmbedContents request.
type Embedding struct {
	apiKey     string
	model      string
	dims       int
	baseURL    string
	httpClient *http.Client
}

// EmbeddingOption configures an Embedding.
type EmbeddingOption func(*Embedding)

// WithEmbeddingBaseURL overrides the API base URL.
func WithEmbeddingBaseURL(u string) EmbeddingOption {
	return func(e *Embedding) { e.baseURL = u }
}

// WithEmbeddingHTTPClient sets the HTTP client used for requests.
func WithEmbeddingHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *Embedding) { e.httpClient = c }
}

// NewEmbedding creates a Gemini embedding provider producing dims-length vectors.
func NewEmbedding(apiKey, model string, dims int, opts ...EmbeddingOption) *Embedding {
	e := &Embedding{
		apiKey:     apiKey,
		model:      model,
		dims:       dims,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(e)
	}
	e.baseURL = strings.TrimRight(e.baseURL, "/")
	return e
}

// Name returns "gemini".
func (e *Embedding) Name() string { return "gemini" }

// Dimensions returns the configured embedding dimensionality.
func (e *Embedding) Dimensions() int { return e.dims }

// Embed returns one vector per text, in input order.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := "models/" + e.model
	body := batchEmbedRequest{Requests: make([]embedRequest, len(texts))}
	for i, t := range texts {
		body.Requests[i] = embedRequest{
			Model:                model,
			Content:              content{Parts: []part{{Text: t}}},
			OutputDimensionality: e.dims,
		}
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents", e.baseURL, model)
	var parsed batchEmbedResponse
	if err := post(ctx, e.httpClient, url, e.apiKey, body, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, &lumen.ErrProvider{Provider: "gemini",
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Embeddings))}
	}
	out := make([][]float32, len(texts))
	for i, emb := range parsed.Embeddings {
		if len(emb.Values) == 0 {
			return nil, &lumen.ErrProvider{Provider: "gemini", Message: fmt.Sprintf("embedding %d has no values", i)}
		}
		out[i] = emb.Values
	}
	return out, nil
}

var _ lumen.EmbeddingProvider = (*Embedding)(nil)
