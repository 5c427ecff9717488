// Package extract turns datasheet source files into plain character
// streams for the ingestion pipeline. Markdown files are stripped to
// their text content; plain text passes through unchanged. Binary
// formats (PDF scans etc.) are the job of an external extractor and are
// rejected here.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrUnsupportedFormat is returned for file types this extractor cannot read.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor reads datasheet documents and returns their plain text.
type Extractor struct {
	md goldmark.Markdown
}

// New creates an Extractor with a goldmark parser for markdown sources.
func New() *Extractor {
	return &Extractor{
		md: goldmark.New(),
	}
}

// FromFile reads a document from disk and extracts its text.
func (e *Extractor) FromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return e.FromBytes(filepath.Base(path), data)
}

// FromBytes extracts text from an in-memory document. The name's
// extension selects the format.
func (e *Extractor) FromBytes(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".text":
		return string(data), nil
	case ".md", ".markdown":
		return e.stripMarkdown(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// stripMarkdown parses markdown and collects the text content of every
// node, dropping formatting, links, and structural markers.
func (e *Extractor) stripMarkdown(source []byte) string {
	doc := e.md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.AutoLink:
			if entering {
				b.Write(node.URL(source))
			}
		case *ast.FencedCodeBlock:
			if entering {
				writeLines(&b, source, node)
			}
		case *ast.CodeBlock:
			if entering {
				writeLines(&b, source, node)
			}
		default:
			// Separate block-level nodes so headings and paragraphs do
			// not run together.
			if !entering && n.Type() == ast.TypeBlock {
				b.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

// writeLines copies a code block's raw lines into the builder.
func writeLines(b *strings.Builder, source []byte, node ast.Node) {
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	b.WriteString("\n\n")
}
