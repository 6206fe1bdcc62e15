// Package extract defines the adapter boundary to the content extractor.
// The pipeline never parses document payloads itself; it hands bytes across
// this interface and records the outcome.
package extract

import "context"

// Extraction is the structured output of the content extractor.
type Extraction struct {
	Text   string     `json:"text"`
	Tables [][]string `json:"tables,omitempty"`
}

// Extractor converts downloaded bytes into text. An error marks the result
// extraction_status=failed without failing the fetch.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (Extraction, error)
}
