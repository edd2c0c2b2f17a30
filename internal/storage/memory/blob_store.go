// Package memory provides in-process implementations of the orchestrator's
// persistence ports for development and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// BlobStore stores artifacts in-memory and returns pseudo URIs.
type BlobStore struct {
	mu      sync.RWMutex
	data    map[string][]byte
	types   map[string]string
	baseURL string
}

// NewBlobStore creates a new in-memory blob store. When baseURL is set the
// returned URIs are baseURL/path, otherwise memory://path.
func NewBlobStore(baseURL string) *BlobStore {
	return &BlobStore{
		data:    make(map[string][]byte),
		types:   make(map[string]string),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// PutObject persists the content and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	s.types[path] = contentType
	if s.baseURL != "" {
		return s.baseURL + "/" + path, nil
	}
	return "memory://" + path, nil
}

// Object returns a stored object and its content type.
func (s *BlobStore) Object(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	return data, s.types[path], ok
}
