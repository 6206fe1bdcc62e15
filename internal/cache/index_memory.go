package cache

import (
	"context"
	"sync"

	"github.com/quantfeed/linkharvest/internal/links"
)

// MemoryIndex keeps both cache layers in process memory. Suitable for tests
// and single-instance deployments without a database.
type MemoryIndex struct {
	mu   sync.RWMutex
	urls map[string]URLRecord
	docs map[string]links.DownloadedDocument
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		urls: make(map[string]URLRecord),
		docs: make(map[string]links.DownloadedDocument),
	}
}

// LookupURL returns the recency record for a normalized URL.
func (m *MemoryIndex) LookupURL(_ context.Context, url string) (URLRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.urls[url]
	if !ok {
		return URLRecord{}, ErrNotFound
	}
	return record, nil
}

// RecordURL upserts the recency record for a normalized URL.
func (m *MemoryIndex) RecordURL(_ context.Context, record URLRecord) error {
	m.mu.Lock()
	m.urls[record.URL] = record
	m.mu.Unlock()
	return nil
}

// LookupDocument returns the content-addressed document for a digest.
func (m *MemoryIndex) LookupDocument(_ context.Context, contentHash string) (links.DownloadedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[contentHash]
	if !ok {
		return links.DownloadedDocument{}, ErrNotFound
	}
	return doc, nil
}

// StoreDocument upserts a content-addressed document.
func (m *MemoryIndex) StoreDocument(_ context.Context, doc links.DownloadedDocument) error {
	m.mu.Lock()
	m.docs[doc.ContentHash] = doc
	m.mu.Unlock()
	return nil
}
