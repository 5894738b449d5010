package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Dir is a flat namespace of named files inside one directory.
// There is no hierarchy: every name maps to a file directly under the root.
type Dir struct {
	root string
}

// DefaultRoot is the directory used when none is configured.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), "mediatools", "sandbox")
}

// NewDir creates a Dir rooted at root, creating the directory if needed.
// If root is empty, a "mediatools/sandbox" directory under os.TempDir() is used.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		root = DefaultRoot()
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create sandbox directory: %w", err)
	}

	return &Dir{root: root}, nil
}

// NewPrivateDir creates a fresh, uniquely named directory inside parent
// (created if needed) and returns a Dir rooted at it. pattern follows
// os.MkdirTemp. Nothing outside the new directory is ever touched through the
// returned Dir, so RemoveAll on it is safe even when parent holds other files.
func NewPrivateDir(parent, pattern string) (*Dir, error) {
	if parent == "" {
		parent = DefaultRoot()
	}
	if err := os.MkdirAll(parent, 0750); err != nil {
		return nil, fmt.Errorf("create sandbox parent: %w", err)
	}
	root, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return nil, fmt.Errorf("create private sandbox: %w", err)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory path.
func (d *Dir) Root() string {
	return d.root
}

// Write stores data under name, replacing any previous content.
// The file is written to a temporary name first and renamed into place, so a
// failed write never leaves a truncated entry behind.
func (d *Dir) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := ValidateName(name); err != nil {
		return err
	}

	f, err := os.CreateTemp(d.root, "."+name+"_*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := os.Rename(tmpName, d.path(name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// Read returns the content stored under name.
// Returns ErrNotFound if nothing was written under name.
func (d *Dir) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(d.path(name)) // #nosec G304 - name is validated as a flat entry
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Delete removes name.
// Returns ErrNotFound if nothing was written under name.
func (d *Dir) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := ValidateName(name); err != nil {
		return err
	}

	if err := os.Remove(d.path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// RemoveAll deletes the directory and everything in it.
func (d *Dir) RemoveAll() error {
	return os.RemoveAll(d.root)
}

func (d *Dir) path(name string) string {
	return filepath.Join(d.root, name)
}
