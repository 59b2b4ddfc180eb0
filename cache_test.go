package lumen

import (
	"context"
	"testing"
)

func TestWithQueryCacheHitsCache(t *testing.T) {
	inner := &countingEmbedder{dims: 4}
	e, err := WithQueryCache(inner, 16)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	first, err := EmbedQuery(ctx, e, "what is lumen?")
	if err != nil {
		t.Fatal(err)
	}
	second, err := EmbedQuery(ctx, e, "what is lumen?")
	if err != nil {
		t.Fatal(err)
	}
	if inner.callCount() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.callCount())
	}
	if len(first) != 4 || first[0] != second[0] {
		t.Errorf("cached vector differs: %v vs %v", first, second)
	}

	if _, err := EmbedQuery(ctx, e, "another question"); err != nil {
		t.Fatal(err)
	}
	if inner.callCount() != 2 {
		t.Errorf("inner calls = %d, want 2 for a new query", inner.callCount())
	}
}

func TestWithQueryCacheDocumentsPassThrough(t *testing.T) {
	inner := &countingEmbedder{dims: 2}
	e, err := WithQueryCache(inner, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := e.Embed(context.Background(), []string{"doc"}); err != nil {
			t.Fatal(err)
		}
	}
	if inner.callCount() != 2 {
		t.Errorf("inner calls = %d, want 2", inner.callCount())
	}
}

func TestEmbedQueryWithoutQueryEmbedder(t *testing.T) {
	inner := &countingEmbedder{dims: 3}
	vec, err := EmbedQuery(context.Background(), inner, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 {
		t.Errorf("len = %d, want 3", len(vec))
	}
}
