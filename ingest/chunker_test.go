package ingest

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nevindra/lumen"
)

func reassemble(chunks []lumen.Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Core())
	}
	return sb.String()
}

func checkChunks(t *testing.T, doc lumen.Document, chunks []lumen.Chunk, size, overlap int) {
	t.Helper()
	if got := reassemble(chunks); got != doc.Content {
		t.Fatalf("cores do not reassemble the document:\n got %q\nwant %q", got, doc.Content)
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c.Text); n > size {
			t.Errorf("chunk %d has %d chars, limit %d", i, n, size)
		}
		if c.Index != i {
			t.Errorf("chunk %d has Index %d", i, c.Index)
		}
		if doc.Content[c.StartOffset:c.StartOffset+len(c.Core())] != c.Core() {
			t.Errorf("chunk %d StartOffset %d does not locate its core", i, c.StartOffset)
		}
		if i == 0 {
			if c.OverlapLen != 0 {
				t.Errorf("first chunk has overlap %d", c.OverlapLen)
			}
			continue
		}
		prefix := c.Text[:c.OverlapLen]
		if !strings.HasSuffix(chunks[i-1].Text, prefix) {
			t.Errorf("chunk %d prefix %q is not a suffix of chunk %d", i, prefix, i-1)
		}
		if want := min(overlap, utf8.RuneCountInString(chunks[i-1].Text)); utf8.RuneCountInString(prefix) != want {
			t.Errorf("chunk %d prefix has %d chars, want %d", i, utf8.RuneCountInString(prefix), want)
		}
	}
}

func TestSplitNoWhitespace(t *testing.T) {
	doc := lumen.Document{ID: "d", Content: strings.Repeat("x", 300)}
	chunks, err := Split(doc, 100, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	if len(chunks[0].Core()) != 100 {
		t.Errorf("chunk 1 core length = %d, want 100", len(chunks[0].Core()))
	}
	if chunks[1].Text[:20] != chunks[0].Text[80:] {
		t.Error("chunk 2 should begin with the last 20 chars of chunk 1")
	}
	if !chunks[0].Overflow {
		t.Error("hard cut should be flagged")
	}
	if chunks[3].Overflow {
		t.Error("the final remainder needs no cut")
	}
	checkChunks(t, doc, chunks, 100, 20)
}

func TestSplitPrefersParagraphs(t *testing.T) {
	para1 := strings.Repeat("alpha beta. ", 6) // 72 chars
	para2 := strings.Repeat("gamma delta. ", 6)
	doc := lumen.Document{Content: para1 + "\n\n" + para2}

	chunks, err := Split(doc, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(chunks[0].Text, "\n\n") {
		t.Errorf("first chunk should end at the paragraph break, got %q", chunks[0].Text)
	}
	checkChunks(t, doc, chunks, 100, 10)
}

func TestSplitPrefersSentences(t *testing.T) {
	doc := lumen.Document{Content: "The first sentence is here. The second one follows it. A third sentence closes the text."}
	chunks, err := Split(doc, 60, 5)
	if err != nil {
		t.Fatal(err)
	}
	if chunks[0].Text != "The first sentence is here. The second one follows it. " {
		t.Errorf("first chunk = %q, want a cut after the second sentence", chunks[0].Text)
	}
	for _, c := range chunks {
		if c.Overflow {
			t.Error("no chunk should overflow")
		}
	}
	checkChunks(t, doc, chunks, 60, 5)
}

func TestSplitSkipsAbbreviations(t *testing.T) {
	doc := lumen.Document{Content: "We met Dr. Smith at noon and talked. Then we left."}
	chunks, err := Split(doc, 44, 0)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasSuffix(chunks[0].Text, "Dr. ") {
		t.Errorf("should not cut after an abbreviation: %q", chunks[0].Text)
	}
	checkChunks(t, doc, chunks, 44, 0)
}

func TestSplitCJK(t *testing.T) {
	doc := lumen.Document{Content: strings.Repeat("今天天气很好。", 10)}
	chunks, err := Split(doc, 20, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(chunks[0].Core(), "。") {
		t.Errorf("CJK chunk should end at 。, got %q", chunks[0].Core())
	}
	checkChunks(t, doc, chunks, 20, 4)
}

func TestSplitRoundTrip(t *testing.T) {
	content := "Retrieval-augmented generation grounds answers in documents.\n\n" +
		"Chunks overlap so that context spanning a boundary is not lost. " +
		"Mr. Lee wrote 3.14 on the board! Did anyone notice? " +
		strings.Repeat("word ", 80) + "\n\n" +
		strings.Repeat("z", 130) + " tail。尾巴。"
	doc := lumen.Document{ID: "doc", Content: content}

	params := []struct{ size, overlap int }{
		{50, 0}, {50, 10}, {100, 20}, {100, 99}, {1, 0}, {7, 3}, {1000, 200},
	}
	for _, p := range params {
		chunks, err := Split(doc, p.size, p.overlap)
		if err != nil {
			t.Fatalf("Split(%d, %d): %v", p.size, p.overlap, err)
		}
		checkChunks(t, doc, chunks, p.size, p.overlap)
	}
}

func TestSplitShortDocument(t *testing.T) {
	doc := lumen.Document{ID: "d", Content: "short"}
	chunks, err := Split(doc, 100, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Text != "short" || chunks[0].ID != "d:0" || chunks[0].DocumentID != "d" {
		t.Errorf("chunks = %+v", chunks)
	}
}

func TestSplitEmpty(t *testing.T) {
	chunks, err := Split(lumen.Document{}, 100, 20)
	if err != nil || len(chunks) != 0 {
		t.Errorf("got %v, %v; want no chunks", chunks, err)
	}
}

func TestSplitInvalidParams(t *testing.T) {
	doc := lumen.Document{Content: "text"}
	for _, p := range []struct{ size, overlap int }{{0, 0}, {-1, 0}, {10, -1}, {10, 10}, {10, 11}} {
		if _, err := Split(doc, p.size, p.overlap); !errors.Is(err, ErrInvalidChunkParams) {
			t.Errorf("Split(%d, %d) err = %v, want ErrInvalidChunkParams", p.size, p.overlap, err)
		}
	}
}

func TestRecursiveChunkerDefaults(t *testing.T) {
	c := NewRecursiveChunker()
	if c.chunkSize != DefaultChunkSize || c.overlap != DefaultOverlap {
		t.Errorf("defaults = %d/%d", c.chunkSize, c.overlap)
	}
	doc := lumen.Document{Content: strings.Repeat("Sentence number one. ", 200)}
	chunks, err := c.Chunk(doc)
	if err != nil {
		t.Fatal(err)
	}
	checkChunks(t, doc, chunks, DefaultChunkSize, DefaultOverlap)
}

func TestRecursiveChunkerOptions(t *testing.T) {
	c := NewRecursiveChunker(WithChunkSize(50), WithOverlap(5))
	if c.chunkSize != 50 || c.overlap != 5 {
		t.Errorf("options not applied: %d/%d", c.chunkSize, c.overlap)
	}
}

func TestSplitLargeOverlapCanOverflowShortWords(t *testing.T) {
	doc := lumen.Document{ID: "doc", Content: "alpha bravo charlie"}
	chunks, err := Split(doc, 12, 8)
	if err != nil {
		t.Fatal(err)
	}
	checkChunks(t, doc, chunks, 12, 8)

	overflowed := false
	for _, c := range chunks {
		overflowed = overflowed || c.Overflow
	}
	if !overflowed {
		t.Errorf("no chunk flagged Overflow, although every word is shorter than 12 but the window after an 8-char prefix is 4: %+v", chunks)
	}
}
