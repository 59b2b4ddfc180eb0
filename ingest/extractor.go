package ingest

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// Extractor converts raw file content to plain text.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// ExtractResult holds extracted text and optional per-page metadata.
type ExtractResult struct {
	Text string
	Meta []PageMeta
}

// PageMeta marks the byte range [StartByte, EndByte) of ExtractResult.Text
// that came from page PageNumber.
type PageMeta struct {
	PageNumber int
	StartByte  int
	EndByte    int
}

// MetadataExtractor is an optional capability for extractors that know page
// boundaries. The loader emits one document per page for them.
type MetadataExtractor interface {
	ExtractWithMeta(content []byte) (ExtractResult, error)
}

// ContentType identifies the MIME type of content for extraction.
type ContentType string

const (
	TypePlainText ContentType = "text/plain"
	TypeHTML      ContentType = "text/html"
	TypeMarkdown  ContentType = "text/markdown"
	TypePDF       ContentType = "application/pdf"
)

// ContentTypeFromExtension maps a file extension (with or without the dot)
// to a content type. Unknown extensions return "".
func ContentTypeFromExtension(ext string) ContentType {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "txt", "text":
		return TypePlainText
	case "md", "markdown":
		return TypeMarkdown
	case "html", "htm":
		return TypeHTML
	case "pdf":
		return TypePDF
	default:
		return ""
	}
}

// --- Built-in extractors ---

// PlainTextExtractor returns content as-is.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(content []byte) (string, error) {
	return string(content), nil
}

// MarkdownExtractor renders markdown to plain text, dropping markup and raw HTML.
type MarkdownExtractor struct{}

func (MarkdownExtractor) Extract(content []byte) (string, error) {
	return markdownText(content)
}

func markdownText(src []byte) (string, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var sb strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				sb.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					sb.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				sb.Write(node.Label(src))
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(src))
				}
				endBlock(&sb)
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock, *ast.ThematicBreak:
			if !entering {
				endBlock(&sb)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}

// endBlock terminates a block with a blank line so paragraph breaks survive
// into the chunker.
func endBlock(sb *strings.Builder) {
	s := sb.String()
	switch {
	case s == "", strings.HasSuffix(s, "\n\n"):
	case strings.HasSuffix(s, "\n"):
		sb.WriteByte('\n')
	default:
		sb.WriteString("\n\n")
	}
}

// HTMLExtractor extracts the main article text of a page with readability,
// falling back to all visible text when no article is found.
type HTMLExtractor struct{}

func (HTMLExtractor) Extract(content []byte) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(content), &url.URL{Scheme: "file", Path: "/"})
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent), nil
	}
	return visibleText(content), nil
}

// blockTags end a line of visible text.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "pre": true, "blockquote": true,
}

// visibleText returns the text nodes of an HTML document outside script and style.
func visibleText(content []byte) string {
	z := html.NewTokenizer(bytes.NewReader(content))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				skip++
			case blockTags[tag]:
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case (tag == "script" || tag == "style") && skip > 0:
				skip--
			case blockTags[tag]:
				sb.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}
