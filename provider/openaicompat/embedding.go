package openaicompat

import (
	"context"
	"net/http"
	"strings"

	"github.com/nevindra/lumen"
)

// Embedding implements lumen.EmbeddingProvider against the /embeddings
// endpoint of an OpenAI-compatible API.
type Embedding struct {
	apiKey   string
	model    string
	baseURL  string
	dims     int
	sendDims bool
	client   *http.Client
	name     string
}

// EmbeddingOption configures an Embedding provider.
type EmbeddingOption func(*Embedding)

// WithEmbeddingName sets the name returned by Name() (default "openai").
func WithEmbeddingName(name string) EmbeddingOption {
	return func(e *Embedding) { e.name = name }
}

// WithEmbeddingHTTPClient sets a custom HTTP client.
func WithEmbeddingHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *Embedding) { e.client = c }
}

// WithRequestDimensions asks the API to truncate vectors to the configured
// dimensions. Only some models (text-embedding-3-*) support it.
func WithRequestDimensions() EmbeddingOption {
	return func(e *Embedding) { e.sendDims = true }
}

// NewEmbedding creates an embedding provider. dims is the vector length the
// model produces; it is reported by Dimensions.
func NewEmbedding(apiKey, model, baseURL string, dims int, opts ...EmbeddingOption) *Embedding {
	e := &Embedding{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		dims:    dims,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Embedding) Name() string { return e.name }

func (e *Embedding) Dimensions() int { return e.dims }

// Embed returns one vector per text, in input order.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := EmbeddingRequest{Model: e.model, Input: texts}
	if e.sendDims {
		body.Dimensions = e.dims
	}
	var resp EmbeddingResponse
	if err := postJSON(ctx, e.client, e.baseURL+"/embeddings", e.apiKey, e.name, body, &resp); err != nil {
		return nil, err
	}
	vecs, err := ParseEmbeddings(resp, len(texts))
	if err != nil {
		return nil, &lumen.ErrProvider{Provider: e.name, Message: "parse embeddings", Err: err}
	}
	return vecs, nil
}

var _ lumen.EmbeddingProvider = (*Embedding)(nil)
