package chromem

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/nevindra/lumen"
)

func newIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New("test")
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestChromemQuery(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	entries := []lumen.IndexEntry{
		{ChunkID: "x", Embedding: []float32{1, 0, 0}, Text: "about x", Metadata: map[string]string{"source": "a.txt"}},
		{ChunkID: "y", Embedding: []float32{0, 1, 0}, Text: "about y"},
		{ChunkID: "xy", Embedding: []float32{1, 1, 0}, Text: "about both"},
	}
	for _, e := range entries {
		if err := idx.Add(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := idx.Query(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ChunkID != "x" || got[1].ChunkID != "xy" {
		t.Errorf("order = [%s %s], want [x xy]", got[0].ChunkID, got[1].ChunkID)
	}
	if got[0].Text != "about x" || got[0].Metadata["source"] != "a.txt" {
		t.Errorf("entry not round-tripped: %+v", got[0].IndexEntry)
	}
	if got[0].Score < got[1].Score {
		t.Error("scores should be descending")
	}
}

func TestChromemClampsK(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	idx.Add(ctx, lumen.IndexEntry{ChunkID: "a", Embedding: []float32{1, 0}})

	got, err := idx.Query(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestChromemEmpty(t *testing.T) {
	got, err := newIndex(t).Query(context.Background(), []float32{1, 0}, 3)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v; want empty", got, err)
	}
}

func TestChromemRejectsDuplicatesAndMismatch(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	idx.Add(ctx, lumen.IndexEntry{ChunkID: "a", Embedding: []float32{1, 0}})

	if err := idx.Add(ctx, lumen.IndexEntry{ChunkID: "a", Embedding: []float32{0, 1}}); !errors.Is(err, lumen.ErrDuplicateEntry) {
		t.Errorf("duplicate: err = %v", err)
	}
	if err := idx.Add(ctx, lumen.IndexEntry{ChunkID: "b", Embedding: []float32{0, 1, 0}}); !errors.Is(err, lumen.ErrDimensionMismatch) {
		t.Errorf("mismatch: err = %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("Len = %d, want 1", idx.Len())
	}
}

func TestChromemTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("e%02d", i)
		if err := idx.Add(ctx, lumen.IndexEntry{ChunkID: id, Embedding: []float32{1, 0}}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := idx.Query(ctx, []float32{1, 0}, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Fatalf("len = %d, want 20", len(got))
	}
	for i, e := range got {
		if want := fmt.Sprintf("e%02d", i); e.ChunkID != want {
			t.Fatalf("got[%d] = %s, want %s", i, e.ChunkID, want)
		}
	}

	top, _ := idx.Query(ctx, []float32{1, 0}, 3)
	if len(top) != 3 || top[0].ChunkID != "e00" || top[2].ChunkID != "e02" {
		t.Errorf("top 3 = %v, want e00..e02", top)
	}
}

func TestChromemZeroVectorScoresZero(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	idx.Add(ctx, lumen.IndexEntry{ChunkID: "a", Embedding: []float32{0, 0}})
	idx.Add(ctx, lumen.IndexEntry{ChunkID: "b", Embedding: []float32{1, 0}})

	got, err := idx.Query(ctx, []float32{0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, e := range got {
		if math.IsNaN(float64(e.Score)) || e.Score != 0 {
			t.Errorf("%s score = %v, want 0", e.ChunkID, e.Score)
		}
	}
	if got[0].ChunkID != "a" {
		t.Errorf("order = [%s %s], want insertion order for equal scores", got[0].ChunkID, got[1].ChunkID)
	}

	got, _ = idx.Query(ctx, []float32{1, 0}, 1)
	if got[0].ChunkID != "b" || got[0].Score < 0.99 {
		t.Errorf("nonzero query = %+v", got[0])
	}
}
