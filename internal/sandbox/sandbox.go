// Package sandbox moves bytes in and out of the engine's private namespace.
package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/maauso/mediatools-api/internal/storage"
)

// Errors surfaced by the bridge. They are the storage sentinels, so callers
// can match them without importing storage.
var (
	ErrNotFound    = storage.ErrNotFound
	ErrInvalidName = storage.ErrInvalidName
)

// Files is the part of an engine session the bridge needs.
type Files interface {
	WriteFile(ctx context.Context, name string, data []byte) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	DeleteFile(ctx context.Context, name string) error
}

// IOError reports a failed sandbox operation on one name.
type IOError struct {
	Op   string
	Name string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("sandbox %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Bridge stages inputs and collects outputs through an engine session.
type Bridge struct {
	files Files
}

// NewBridge creates a Bridge over files.
func NewBridge(files Files) *Bridge {
	return &Bridge{files: files}
}

// Write stores data under name, overwriting any previous content.
func (b *Bridge) Write(ctx context.Context, name string, data []byte) error {
	if err := storage.ValidateName(name); err != nil {
		return &IOError{Op: "write", Name: name, Err: err}
	}
	if err := b.files.WriteFile(ctx, name, data); err != nil {
		return &IOError{Op: "write", Name: name, Err: err}
	}
	return nil
}

// Read returns the bytes stored under name.
func (b *Bridge) Read(ctx context.Context, name string) ([]byte, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, &IOError{Op: "read", Name: name, Err: err}
	}
	data, err := b.files.ReadFile(ctx, name)
	if err != nil {
		return nil, &IOError{Op: "read", Name: name, Err: err}
	}
	return data, nil
}

// Delete removes name.
func (b *Bridge) Delete(ctx context.Context, name string) error {
	if err := storage.ValidateName(name); err != nil {
		return &IOError{Op: "delete", Name: name, Err: err}
	}
	if err := b.files.DeleteFile(ctx, name); err != nil {
		return &IOError{Op: "delete", Name: name, Err: err}
	}
	return nil
}

// Stage writes data under name and returns a func that deletes it again.
// The release func is safe to call more than once; only the first call
// reaches the engine.
func (b *Bridge) Stage(ctx context.Context, name string, data []byte) (func(context.Context) error, error) {
	if err := b.Write(ctx, name, data); err != nil {
		return nil, err
	}
	released := false
	return func(ctx context.Context) error {
		if released {
			return nil
		}
		released = true
		return b.Delete(ctx, name)
	}, nil
}

// IsNotFound reports whether err means the name was never written.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
