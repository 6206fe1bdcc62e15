package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientConfig controls the HTTP extractor client.
type ClientConfig struct {
	// ServiceURL is the extraction endpoint, e.g. http://extractor:8080/v1/extract.
	ServiceURL string        `mapstructure:"service_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Client calls a remote extraction service over HTTP. The payload goes out
// raw with its content type; the response is the Extraction JSON.
type Client struct {
	serviceURL string
	httpClient *http.Client
}

// NewClient builds an extractor client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.ServiceURL == "" {
		return nil, fmt.Errorf("extractor.service_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		serviceURL: cfg.ServiceURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Extract posts the bytes to the extraction service.
func (c *Client) Extract(ctx context.Context, data []byte, contentType string) (Extraction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(data))
	if err != nil {
		return Extraction{}, fmt.Errorf("build extract request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Extraction{}, fmt.Errorf("call extractor: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Extraction{}, fmt.Errorf("extractor returned status %d", resp.StatusCode)
	}

	var out Extraction
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Extraction{}, fmt.Errorf("decode extractor response: %w", err)
	}
	return out, nil
}
