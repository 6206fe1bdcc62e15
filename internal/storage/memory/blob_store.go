// Package memory implements an in-memory blob store for tests and
// cache-index-only deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// BlobStore keeps raw artifacts in a map.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// New creates an empty in-memory blob store.
func New() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

// PutObject stores data under path and returns a mem:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	s.blobs[path] = append([]byte(nil), data...)
	s.mu.Unlock()
	return fmt.Sprintf("mem://%s", path), nil
}

// Get returns a stored blob, for test assertions.
func (s *BlobStore) Get(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[path]
	return data, ok
}

// Len reports the number of stored blobs.
func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
