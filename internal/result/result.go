// Package result publishes job outputs so callers can fetch them after the
// engine's copy is gone.
package result

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/maauso/mediatools-api/internal/job/id"
	"github.com/maauso/mediatools-api/internal/storage"
)

// ErrNotFound is returned for handles that were never published or have been
// released.
var ErrNotFound = errors.New("result: not found")

// Store holds published bytes. storage.S3Store satisfies it.
type Store interface {
	// Put stores data under key and returns the URL it can be fetched from.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	// Get returns the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// Handle references one published output.
type Handle struct {
	ID         string `json:"id"`
	Slot       string `json:"slot"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	ByteLength int    `json:"byte_length"`
	URL        string `json:"url"`
}

// Materializer tracks live handles. Each slot holds at most one handle;
// publishing into an occupied slot releases the previous handle.
type Materializer struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]Handle
	slots   map[string]string
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Materializer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMaterializer creates a Materializer backed by store.
func NewMaterializer(store Store, opts ...Option) *Materializer {
	m := &Materializer{
		store:   store,
		logger:  slog.Default(),
		handles: make(map[string]Handle),
		slots:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Publish stores data and returns its handle. A handle previously published
// into slot is released after the new one exists.
func (m *Materializer) Publish(ctx context.Context, slot, name string, data []byte, mimeType string) (Handle, error) {
	h := Handle{
		ID:         id.New("res"),
		Slot:       slot,
		Name:       name,
		MimeType:   mimeType,
		ByteLength: len(data),
	}
	url, err := m.store.Put(ctx, h.ID, mimeType, data)
	if err != nil {
		return Handle{}, fmt.Errorf("publish %s: %w", name, err)
	}
	h.URL = url

	m.mu.Lock()
	prevID, hadPrev := m.slots[slot]
	m.slots[slot] = h.ID
	m.handles[h.ID] = h
	prev := m.handles[prevID]
	m.mu.Unlock()

	if hadPrev {
		if err := m.Release(ctx, prev); err != nil {
			m.logger.Warn("failed to release replaced result",
				slog.String("result_id", prev.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return h, nil
}

// Release frees the bytes behind h. Releasing a handle twice is a no-op.
func (m *Materializer) Release(ctx context.Context, h Handle) error {
	m.mu.Lock()
	live, ok := m.handles[h.ID]
	if ok {
		delete(m.handles, h.ID)
		if m.slots[live.Slot] == h.ID {
			delete(m.slots, live.Slot)
		}
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := m.store.Delete(ctx, h.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("release %s: %w", h.ID, err)
	}
	return nil
}

// ReleaseSlots releases every live handle whose slot starts with prefix.
func (m *Materializer) ReleaseSlots(ctx context.Context, prefix string) error {
	var errs []error
	for _, h := range m.List() {
		if strings.HasPrefix(h.Slot, prefix) {
			errs = append(errs, m.Release(ctx, h))
		}
	}
	return errors.Join(errs...)
}

// Get returns the live handle with the given ID.
func (m *Materializer) Get(id string) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	if !ok {
		return Handle{}, ErrNotFound
	}
	return h, nil
}

// Open returns the handle and its bytes.
func (m *Materializer) Open(ctx context.Context, id string) (Handle, []byte, error) {
	h, err := m.Get(id)
	if err != nil {
		return Handle{}, nil, err
	}
	data, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Handle{}, nil, ErrNotFound
		}
		return Handle{}, nil, fmt.Errorf("open %s: %w", id, err)
	}
	return h, data, nil
}

// List returns the live handles ordered by slot.
func (m *Materializer) List() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handle, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Close releases every live handle.
func (m *Materializer) Close(ctx context.Context) error {
	return m.ReleaseSlots(ctx, "")
}
