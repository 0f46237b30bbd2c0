package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"
)

const drawingML = "http://schemas.openxmlformats.org/drawingml/2006/main"

// PPTXExtractor extracts slide text from PowerPoint presentations. Each
// slide starts with a "--- Slide N ---" line followed by its title and the
// text of its other shapes.
type PPTXExtractor struct{}

// NewPPTXExtractor creates a PPTXExtractor.
func NewPPTXExtractor() *PPTXExtractor { return &PPTXExtractor{} }

// Extensions implements Extractor.
func (PPTXExtractor) Extensions() []string { return []string{".pptx"} }

// Extract implements Extractor.
func (PPTXExtractor) Extract(ctx context.Context, r io.Reader) (*Extracted, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read PPTX: %w", ErrExtractionFailed, err)
	}

	slides := slideFiles(zr)
	if len(slides) == 0 {
		return nil, fmt.Errorf("%w: presentation has no slides", ErrExtractionFailed)
	}

	var sb strings.Builder
	for i, f := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		title, body, err := readSlide(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrExtractionFailed, f.Name, err)
		}

		fmt.Fprintf(&sb, "--- Slide %d ---\n", i+1)
		if title != "" {
			fmt.Fprintf(&sb, "Title: %s\n\n", title)
		}
		for _, text := range body {
			sb.WriteString(text)
			sb.WriteByte('\n')
		}
		sb.WriteString("\n\n")
	}

	out := &Extracted{
		Text:     normalize(sb.String()),
		Metadata: map[string]any{"type": "pptx", "slides": len(slides)},
	}
	if props, ok := coreProperties(zr); ok {
		out.Title = props.Title
		if props.Creator != "" {
			out.Metadata["author"] = props.Creator
		}
	}
	return out, nil
}

// slideFiles returns ppt/slides/slideN.xml in slide number order.
func slideFiles(zr *zip.Reader) []*zip.File {
	type numbered struct {
		n int
		f *zip.File
	}
	var found []numbered
	for _, f := range zr.File {
		dir, name := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(name, "slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "slide"), ".xml"))
		if err != nil {
			continue
		}
		found = append(found, numbered{n, f})
	}
	slices.SortFunc(found, func(a, b numbered) int { return a.n - b.n })

	files := make([]*zip.File, len(found))
	for i, s := range found {
		files[i] = s.f
	}
	return files
}

func readSlide(f *zip.File) (string, []string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()
	return slideText(rc)
}

// slideText walks one slide. Text runs (<a:t>) of a shape (<p:sp> or a
// table frame) are joined, paragraphs and table cells end with a newline,
// and the shape holding the title placeholder is returned separately.
func slideText(r io.Reader) (string, []string, error) {
	dec := xml.NewDecoder(r)

	var (
		title   string
		body    []string
		shape   strings.Builder
		depth   int
		isTitle bool
		inText  bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("parse slide: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "sp" || t.Name.Local == "graphicFrame":
				if depth == 0 {
					shape.Reset()
					isTitle = false
				}
				depth++
			case t.Name.Local == "ph":
				for _, a := range t.Attr {
					if a.Name.Local == "type" && (a.Value == "title" || a.Value == "ctrTitle") {
						isTitle = true
					}
				}
			case t.Name.Space == drawingML && t.Name.Local == "t":
				inText = true
			case t.Name.Space == drawingML && t.Name.Local == "br":
				shape.WriteByte('\n')
			}
		case xml.EndElement:
			switch {
			case t.Name.Local == "sp" || t.Name.Local == "graphicFrame":
				depth--
				if depth > 0 {
					continue
				}
				text := strings.TrimSpace(shape.String())
				switch {
				case text == "":
				case isTitle && title == "":
					title = strings.Join(strings.Fields(text), " ")
				default:
					body = append(body, text)
				}
			case t.Name.Space == drawingML && t.Name.Local == "t":
				inText = false
			case t.Name.Space == drawingML && t.Name.Local == "p":
				shape.WriteByte('\n')
			}
		case xml.CharData:
			if inText && depth > 0 {
				shape.Write(t)
			}
		}
	}
	return title, body, nil
}

type coreProps struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
}

// coreProperties reads docProps/core.xml when present.
func coreProperties(zr *zip.Reader) (coreProps, bool) {
	var props coreProps
	f, err := zr.Open("docProps/core.xml")
	if err != nil {
		return props, false
	}
	defer f.Close()
	if err := xml.NewDecoder(f).Decode(&props); err != nil {
		return props, false
	}
	props.Title = strings.TrimSpace(props.Title)
	props.Creator = strings.TrimSpace(props.Creator)
	return props, true
}
