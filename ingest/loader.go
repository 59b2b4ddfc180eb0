package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/nevindra/lumen"
)

// ErrUnsupportedFormat is returned for file extensions with no extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Metadata keys set on loaded documents.
const (
	MetaSource = "source"
	MetaPage   = "page"
	MetaFormat = "format"
)

// Loader turns files into documents, picking an extractor by file extension.
type Loader struct {
	extractors map[ContentType]Extractor
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithExtractor registers (or replaces) the extractor for a content type.
func WithExtractor(ct ContentType, e Extractor) LoaderOption {
	return func(l *Loader) { l.extractors[ct] = e }
}

// NewLoader returns a loader for .txt, .md, .html and .pdf files.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{extractors: map[ContentType]Extractor{
		TypePlainText: PlainTextExtractor{},
		TypeMarkdown:  MarkdownExtractor{},
		TypeHTML:      HTMLExtractor{},
		TypePDF:       NewPDFExtractor(),
	}}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LoadFile loads path with the default loader.
func LoadFile(path string) ([]lumen.Document, error) {
	return NewLoader().LoadFile(path)
}

// LoadFile reads and extracts path. The format is checked before the file
// is read. Paged formats yield one document per non-empty page.
func (l *Loader) LoadFile(path string) ([]lumen.Document, error) {
	if _, err := l.extractorFor(path); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l.Load(content, path)
}

// Load extracts content, using filename for format detection and the
// source metadata.
func (l *Loader) Load(content []byte, filename string) ([]lumen.Document, error) {
	ext, err := l.extractorFor(filename)
	if err != nil {
		return nil, err
	}
	ct := ContentTypeFromExtension(filepath.Ext(filename))
	meta := func() map[string]string {
		return map[string]string{MetaSource: filename, MetaFormat: string(ct)}
	}

	if me, ok := ext.(MetadataExtractor); ok {
		res, err := me.ExtractWithMeta(content)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", filename, err)
		}
		docs := make([]lumen.Document, 0, len(res.Meta))
		for _, pm := range res.Meta {
			m := meta()
			m[MetaPage] = strconv.Itoa(pm.PageNumber)
			docs = append(docs, lumen.Document{
				ID:       lumen.NewID(),
				Content:  norm.NFC.String(res.Text[pm.StartByte:pm.EndByte]),
				Metadata: m,
			})
		}
		return docs, nil
	}

	text, err := ext.Extract(content)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	return []lumen.Document{{
		ID:       lumen.NewID(),
		Content:  norm.NFC.String(text),
		Metadata: meta(),
	}}, nil
}

func (l *Loader) extractorFor(filename string) (Extractor, error) {
	ext := filepath.Ext(filename)
	if e, ok := l.extractors[ContentTypeFromExtension(ext)]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%s: %q: %w", filename, ext, ErrUnsupportedFormat)
}
