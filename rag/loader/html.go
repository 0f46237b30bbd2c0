package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Elements rendered as their own paragraph.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "figcaption": true,
	"footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true,
	"li": true, "main": true, "nav": true, "ol": true, "p": true,
	"pre": true, "section": true, "table": true, "tr": true, "ul": true,
}

// HTMLExtractor sanitizes HTML and flattens it into paragraphs of text.
type HTMLExtractor struct {
	policy *bluemonday.Policy
}

// NewHTMLExtractor creates an HTMLExtractor using the UGC sanitizing policy.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{policy: bluemonday.UGCPolicy()}
}

// Extensions implements Extractor.
func (*HTMLExtractor) Extensions() []string { return []string{".html", ".htm"} }

// Extract implements Extractor.
func (e *HTMLExtractor) Extract(ctx context.Context, r io.Reader) (*Extracted, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	// The title lives in <head>, which the sanitizer drops.
	title := ""
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw)); err == nil {
		title = strings.TrimSpace(doc.Find("title").First().Text())
		if title == "" {
			title = strings.TrimSpace(doc.Find("h1").First().Text())
		}
	}

	text, err := e.text(raw)
	if err != nil {
		return nil, err
	}
	return &Extracted{Text: text, Title: title, Metadata: map[string]any{"type": "html"}}, nil
}

func (e *HTMLExtractor) text(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(e.policy.SanitizeBytes(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %w", ErrExtractionFailed, err)
	}

	var sb strings.Builder
	writeText(doc.Selection, &sb)
	return normalize(sb.String()), nil
}

// writeText walks the children of sel, collapsing whitespace inside text
// runs and separating block elements with blank lines.
func writeText(sel *goquery.Selection, sb *strings.Builder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		switch {
		case name == "#text":
			sb.WriteString(collapseSpace(s.Text()))
		case name == "br":
			sb.WriteByte('\n')
		case name == "pre":
			sb.WriteString("\n\n")
			sb.WriteString(s.Text())
			sb.WriteString("\n\n")
		case name == "td" || name == "th":
			writeText(s, sb)
			sb.WriteString(" | ")
		case blockElements[name]:
			sb.WriteString("\n\n")
			writeText(s, sb)
			sb.WriteString("\n\n")
		default:
			writeText(s, sb)
		}
	})
}

// collapseSpace folds whitespace runs to one space, keeping a single space
// at either end when the original had one so inline words stay separated.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if strings.TrimLeft(s, " \t\n\r") != s {
		out = " " + out
	}
	if strings.TrimRight(s, " \t\n\r") != s {
		out += " "
	}
	return out
}

// MarkdownExtractor renders markdown to HTML and extracts it like HTML, so
// headings, lists and code blocks become separate paragraphs.
type MarkdownExtractor struct {
	html *HTMLExtractor
}

// NewMarkdownExtractor creates a MarkdownExtractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{html: NewHTMLExtractor()}
}

// Extensions implements Extractor.
func (*MarkdownExtractor) Extensions() []string { return []string{".md", ".markdown"} }

// Extract implements Extractor. The first level-one heading becomes the title.
func (m *MarkdownExtractor) Extract(ctx context.Context, r io.Reader) (*Extracted, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(p.Parse(src), renderer)

	title := ""
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rendered)); err == nil {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	text, err := m.html.text(rendered)
	if err != nil {
		return nil, err
	}
	return &Extracted{Text: text, Title: title, Metadata: map[string]any{"type": "markdown"}}, nil
}
