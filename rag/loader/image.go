package loader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

const (
	visionSystemPrompt = "You are an AI assistant that can analyze images and extract text and information from them."

	// DefaultImagePrompt asks for the visible text of notes, whiteboards and diagrams.
	DefaultImagePrompt = "Please analyze this image and extract all the text content visible in it. " +
		"If it's a whiteboard or notes, organize the content logically. " +
		"If it's a diagram, describe its structure and components. " +
		"If there are mathematical equations, format them clearly."
)

// ImageExtractor turns photos of notes, whiteboards and diagrams into text
// with a vision capable model.
type ImageExtractor struct {
	model   llms.Model
	prompt  string
	options []llms.CallOption
}

// NewImageExtractor creates an ImageExtractor that sends each image to
// model with DefaultImagePrompt.
func NewImageExtractor(model llms.Model, options ...llms.CallOption) *ImageExtractor {
	return &ImageExtractor{model: model, prompt: DefaultImagePrompt, options: options}
}

// WithPrompt returns a copy of e that uses prompt instead of the default.
func (e *ImageExtractor) WithPrompt(prompt string) *ImageExtractor {
	c := *e
	c.prompt = prompt
	return &c
}

// Extensions implements Extractor.
func (*ImageExtractor) Extensions() []string { return []string{".png", ".jpg", ".jpeg"} }

// Extract implements Extractor.
func (e *ImageExtractor) Extract(ctx context.Context, r io.Reader) (*Extracted, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: not a PNG or JPEG image: %w", ErrExtractionFailed, err)
	}

	resp, err := e.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, visionSystemPrompt),
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextContent{Text: e.prompt},
				llms.BinaryContent{MIMEType: http.DetectContentType(data), Data: data},
			},
		},
	}, e.options...)
	if err != nil {
		return nil, fmt.Errorf("%w: image analysis: %w", ErrExtractionFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: image analysis returned no choices", ErrExtractionFailed)
	}

	return &Extracted{
		Text: normalize(strings.TrimSpace(resp.Choices[0].Content)),
		Metadata: map[string]any{
			"type":            "image",
			"format":          format,
			"width":           cfg.Width,
			"height":          cfg.Height,
			"analysis_method": "vision",
		},
	}, nil
}
