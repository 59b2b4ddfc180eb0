package ingest

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nevindra/lumen"
)

// ErrInvalidChunkParams is returned for a non-positive chunk size, a
// negative overlap, or an overlap not smaller than the chunk size.
var ErrInvalidChunkParams = errors.New("invalid chunk parameters")

// Default chunk geometry in characters.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Chunker splits a document into chunks suitable for embedding.
type Chunker interface {
	Chunk(doc lumen.Document) ([]lumen.Chunk, error)
}

// ChunkerOption configures a RecursiveChunker.
type ChunkerOption func(*RecursiveChunker)

// WithChunkSize sets the maximum chunk length in characters (default 1000).
func WithChunkSize(n int) ChunkerOption {
	return func(c *RecursiveChunker) { c.chunkSize = n }
}

// WithOverlap sets how many trailing characters of each chunk are repeated
// at the start of the next one (default 200).
func WithOverlap(n int) ChunkerOption {
	return func(c *RecursiveChunker) { c.overlap = n }
}

// RecursiveChunker splits by paragraphs, then sentences, then words.
// Sentence detection skips common abbreviations (Mr., Dr., e.g.) and
// handles CJK sentence-ending punctuation (。！？).
type RecursiveChunker struct {
	chunkSize int
	overlap   int
}

// NewRecursiveChunker creates a RecursiveChunker with the given options.
func NewRecursiveChunker(opts ...ChunkerOption) *RecursiveChunker {
	c := &RecursiveChunker{chunkSize: DefaultChunkSize, overlap: DefaultOverlap}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *RecursiveChunker) Chunk(doc lumen.Document) ([]lumen.Chunk, error) {
	return Split(doc, c.chunkSize, c.overlap)
}

// Split cuts doc.Content into chunks of at most chunkSize characters
// (runes), overlap prefix included. Cuts prefer the last paragraph break in
// the window, then the last sentence end, then the last whitespace. A hard
// cut happens only when the window holds none of these; that chunk is
// flagged Overflow. Concatenating each chunk's Core() reproduces the content.
//
// The window left for new text is chunkSize minus the overlap prefix, so with
// a large overlap a word shorter than chunkSize can still be hard-cut and
// flagged Overflow. Overflow means the window had no break, not that a
// single word exceeds chunkSize.
func Split(doc lumen.Document, chunkSize, overlap int) ([]lumen.Chunk, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("chunk size %d, overlap %d: %w", chunkSize, overlap, ErrInvalidChunkParams)
	}
	if doc.Content == "" {
		return nil, nil
	}
	docID := doc.ID
	if docID == "" {
		docID = lumen.NewID()
	}

	text := doc.Content
	runes := []rune(text)
	offsets := byteOffsets(text)

	var chunks []lumen.Chunk
	prev := ""
	for pos := 0; pos < len(runes); {
		prefix := lastRunes(prev, overlap)
		budget := chunkSize - utf8.RuneCountInString(prefix)
		end, overflow := nextCut(runes, pos, budget)

		c := lumen.Chunk{
			ID:          fmt.Sprintf("%s:%d", docID, len(chunks)),
			DocumentID:  docID,
			Text:        prefix + text[offsets[pos]:offsets[end]],
			StartOffset: offsets[pos],
			OverlapLen:  len(prefix),
			Index:       len(chunks),
			Overflow:    overflow,
		}
		chunks = append(chunks, c)
		prev = c.Text
		pos = end
	}
	return chunks, nil
}

// breakFunc reports whether cutting before runes[c] is a boundary of its kind.
type breakFunc func(runes []rune, c int) bool

// Boundary kinds, strongest first.
var breakLevels = []breakFunc{paragraphBreak, sentenceBreak, spaceBreak}

// nextCut returns the end (exclusive rune index) of the chunk core starting
// at pos. A boundary in the back half of the window is preferred over a
// stronger one near its start.
func nextCut(runes []rune, pos, budget int) (end int, overflow bool) {
	if len(runes)-pos <= budget {
		return len(runes), false
	}
	limit := pos + budget
	for _, floor := range []int{pos + budget/2, pos} {
		for _, isBreak := range breakLevels {
			for c := limit; c > floor; c-- {
				if isBreak(runes, c) {
					return c, false
				}
			}
		}
	}
	return limit, true
}

func paragraphBreak(runes []rune, c int) bool {
	return c >= 2 && runes[c-1] == '\n' && runes[c-2] == '\n'
}

func sentenceBreak(runes []rune, c int) bool {
	r := runes[c-1]
	if r == '。' || r == '！' || r == '？' {
		return true
	}
	if c < 2 || !unicode.IsSpace(r) {
		return false
	}
	switch runes[c-2] {
	case '!', '?':
		return true
	case '.':
		return !isAbbreviation(runes, c-2)
	}
	return false
}

func spaceBreak(runes []rune, c int) bool {
	return unicode.IsSpace(runes[c-1]) || (c < len(runes) && unicode.IsSpace(runes[c]))
}

// abbreviations that should NOT be treated as sentence boundaries.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true,
	"prof": true, "sr": true, "jr": true,
	"vs": true, "etc": true, "inc": true, "ltd": true,
	"e.g": true, "i.e": true, "viz": true, "al": true,
	"approx": true, "dept": true, "est": true,
	"fig": true, "no": true, "vol": true,
}

// isAbbreviation checks whether the word ending at the dot runes[dot] is a
// common abbreviation.
func isAbbreviation(runes []rune, dot int) bool {
	start := dot
	for start > 0 && (unicode.IsLetter(runes[start-1]) || runes[start-1] == '.') {
		start--
	}
	return abbreviations[strings.ToLower(string(runes[start:dot]))]
}

// byteOffsets maps rune index i of s to its byte offset; the extra last
// entry is len(s). Invalid bytes count as one rune each, as in []rune(s).
func byteOffsets(s string) []int {
	offs := make([]int, 0, utf8.RuneCountInString(s)+1)
	for i := range s {
		offs = append(offs, i)
	}
	return append(offs, len(s))
}

// lastRunes returns the last n runes of s.
func lastRunes(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
