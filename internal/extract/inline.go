package extract

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Inline is the in-process fallback used when no extraction service is
// configured. It handles HTML and plain text; binary formats are reported as
// failed extraction rather than guessed at.
type Inline struct{}

// NewInline returns the fallback extractor.
func NewInline() *Inline {
	return &Inline{}
}

// Extract pulls visible text from HTML, passes plain text through, and
// rejects everything else.
func (e *Inline) Extract(_ context.Context, data []byte, contentType string) (Extraction, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	switch {
	case strings.HasPrefix(mediaType, "text/html"), strings.HasPrefix(mediaType, "application/xhtml"):
		return extractHTML(data)
	case strings.HasPrefix(mediaType, "text/"):
		return Extraction{Text: string(data)}, nil
	default:
		return Extraction{}, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func extractHTML(data []byte) (Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return Extraction{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	return Extraction{Text: text}, nil
}
