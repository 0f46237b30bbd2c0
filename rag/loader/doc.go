// Package loader extracts plain text from uploaded study documents.
//
// Each format has its own Extractor; a Registry chooses one by extension:
//
//	.txt .text       plain text (langchaingo documentloaders)
//	.md .markdown    markdown, rendered with gomarkdown then flattened
//	.html .htm       HTML, sanitized with bluemonday and walked with goquery
//	.pdf             per-page text via ledongthuc/pdf
//	.docx            paragraphs and tables via nguyenthenguyen/docx
//	.pptx            slide titles and shape text, one block per slide
//
// Images (.png .jpg .jpeg) need a vision model. They are rejected with
// ErrUnsupportedFormat until an ImageExtractor is registered:
//
//	r := loader.NewRegistry()
//	r.Register(loader.NewImageExtractor(llm))
//
// Extractors keep paragraph breaks as blank lines so the chunker can split
// on them.
package loader
