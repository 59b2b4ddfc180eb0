package openaicompat

import "testing"

func TestParseResponse_TextResponse(t *testing.T) {
	resp := ParseResponse(ChatResponse{
		Choices: []Choice{{Message: &ChoiceMessage{Role: "assistant", Content: "Final Answer: 4"}}},
		Usage:   &Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
	})
	if resp.Content != "Final Answer: 4" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 4 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestParseResponse_Refusal(t *testing.T) {
	resp := ParseResponse(ChatResponse{
		Choices: []Choice{{Message: &ChoiceMessage{Refusal: "I can't help with that."}}},
	})
	if resp.Content != "I can't help with that." {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestParseResponse_EmptyChoices(t *testing.T) {
	resp := ParseResponse(ChatResponse{})
	if resp.Content != "" || resp.Usage.InputTokens != 0 {
		t.Errorf("expected zero response, got %+v", resp)
	}
}

func TestParseEmbeddings_ReordersByIndex(t *testing.T) {
	vecs, err := ParseEmbeddings(EmbeddingResponse{Data: []EmbeddingData{
		{Index: 1, Embedding: []float32{2}},
		{Index: 0, Embedding: []float32{1}},
	}}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("vectors not in input order: %v", vecs)
	}
}

func TestParseEmbeddings_CountMismatch(t *testing.T) {
	if _, err := ParseEmbeddings(EmbeddingResponse{Data: []EmbeddingData{{Index: 0}}}, 2); err == nil {
		t.Error("expected error for missing vector")
	}
}

func TestParseEmbeddings_BadIndex(t *testing.T) {
	_, err := ParseEmbeddings(EmbeddingResponse{Data: []EmbeddingData{{Index: 0}, {Index: 5}}}, 2)
	if err == nil {
		t.Error("expected error for out-of-range index")
	}
}
