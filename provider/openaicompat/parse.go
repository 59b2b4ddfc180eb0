package openaicompat

import (
	"fmt"
	"sort"

	"github.com/nevindra/lumen"
)

// ParseResponse converts an OpenAI-format ChatResponse to a lumen ChatResponse.
// It extracts content and usage from choices[0]. A refusal is returned as
// the content so the caller sees it.
func ParseResponse(resp ChatResponse) lumen.ChatResponse {
	var out lumen.ChatResponse

	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		msg := resp.Choices[0].Message
		out.Content = msg.Content
		if out.Content == "" {
			out.Content = msg.Refusal
		}
	}

	if resp.Usage != nil {
		out.Usage = lumen.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out
}

// ParseEmbeddings orders the vectors of resp by input index and checks that
// there is exactly one per input.
func ParseEmbeddings(resp EmbeddingResponse, n int) ([][]float32, error) {
	if len(resp.Data) != n {
		return nil, fmt.Errorf("expected %d embeddings, got %d", n, len(resp.Data))
	}
	data := append([]EmbeddingData(nil), resp.Data...)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, n)
	for i, d := range data {
		if d.Index != i {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[i] = d.Embedding
	}
	return out, nil
}
