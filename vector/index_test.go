package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nevindra/lumen"
)

func entry(id string, v ...float32) lumen.IndexEntry {
	return lumen.IndexEntry{ChunkID: id, Embedding: v, Text: "text " + id}
}

func TestQueryOrdersByScore(t *testing.T) {
	ctx := context.Background()
	idx := New()
	idx.Add(ctx, entry("far", 0, 1))
	idx.Add(ctx, entry("near", 1, 0.1))
	idx.Add(ctx, entry("mid", 1, 1))

	got, err := idx.Query(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"near", "mid", "far"}
	for i, w := range want {
		if got[i].ChunkID != w {
			t.Errorf("result[%d] = %s, want %s", i, got[i].ChunkID, w)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not descending: %v", got)
		}
	}
}

func TestQuerySelfSimilarity(t *testing.T) {
	ctx := context.Background()
	idx := New()
	v := []float32{0.2, -0.7, 1.3}
	idx.Add(ctx, entry("self", v...))
	idx.Add(ctx, entry("other", 1, 1, 1))

	got, _ := idx.Query(ctx, v, 1)
	if got[0].ChunkID != "self" {
		t.Fatalf("top = %s, want self", got[0].ChunkID)
	}
	if d := 1 - got[0].Score; d > 1e-5 || d < -1e-5 {
		t.Errorf("self score = %v, want 1", got[0].Score)
	}
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := New()
	for i := 0; i < 5; i++ {
		idx.Add(ctx, entry(fmt.Sprintf("c%d", i), 1, 1))
	}
	got, _ := idx.Query(ctx, []float32{1, 1}, 5)
	for i, r := range got {
		if want := fmt.Sprintf("c%d", i); r.ChunkID != want {
			t.Errorf("result[%d] = %s, want %s", i, r.ChunkID, want)
		}
	}
}

func TestQueryClampsK(t *testing.T) {
	ctx := context.Background()
	idx := New()
	idx.Add(ctx, entry("a", 1, 0))
	idx.Add(ctx, entry("b", 0, 1))

	tests := []struct{ k, want int }{{0, 0}, {1, 1}, {2, 2}, {10, 2}}
	for _, tt := range tests {
		got, err := idx.Query(ctx, []float32{1, 0}, tt.k)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tt.want {
			t.Errorf("k=%d: len = %d, want %d", tt.k, len(got), tt.want)
		}
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	got, err := New().Query(context.Background(), []float32{1}, 3)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v; want empty result", got, err)
	}
}

func TestAddRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	idx := New()
	idx.Add(ctx, entry("a", 1))
	if err := idx.Add(ctx, entry("a", 2)); !errors.Is(err, lumen.ErrDuplicateEntry) {
		t.Errorf("err = %v, want ErrDuplicateEntry", err)
	}
	if idx.Len() != 1 {
		t.Errorf("Len = %d, want 1", idx.Len())
	}
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := New()
	idx.Add(ctx, entry("a", 1, 0))
	if err := idx.Add(ctx, entry("b", 1, 0, 0)); !errors.Is(err, lumen.ErrDimensionMismatch) {
		t.Errorf("Add err = %v, want ErrDimensionMismatch", err)
	}
	if _, err := idx.Query(ctx, []float32{1}, 1); !errors.Is(err, lumen.ErrDimensionMismatch) {
		t.Errorf("Query err = %v, want ErrDimensionMismatch", err)
	}
}

func TestAddCopiesEmbedding(t *testing.T) {
	ctx := context.Background()
	idx := New()
	v := []float32{1, 0}
	idx.Add(ctx, entry("a", v...))
	v[0] = -1
	got, _ := idx.Query(ctx, []float32{1, 0}, 1)
	if got[0].Score < 0.99 {
		t.Errorf("stored embedding was mutated by caller: score %v", got[0].Score)
	}
}

func TestConcurrentAddAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := New()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := idx.Add(ctx, entry(fmt.Sprintf("w%d-%d", w, i), float32(w+1), float32(i))); err != nil {
					t.Error(err)
				}
				idx.Query(ctx, []float32{1, 1}, 3)
			}
		}(w)
	}
	wg.Wait()
	if idx.Len() != 200 {
		t.Errorf("Len = %d, want 200", idx.Len())
	}
}
