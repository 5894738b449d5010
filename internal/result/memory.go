package result

import (
	"context"
	"sync"

	"github.com/maauso/mediatools-api/internal/storage"
)

// Compile-time checks that both backends implement Store.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*storage.S3Store)(nil)
)

// MemoryStore keeps published bytes in process memory. URLs point at the
// HTTP download route.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
}

// NewMemoryStore creates a MemoryStore whose URLs are baseURL + "/" + key.
// An empty baseURL yields "/results/<key>".
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "/results"
	}
	return &MemoryStore{
		baseURL: baseURL,
		objects: make(map[string][]byte),
	}
}

// Put stores a copy of data.
func (s *MemoryStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return s.baseURL + "/" + key, nil
}

// Get returns the bytes stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
