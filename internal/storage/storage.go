// Package storage provides flat, name-addressed byte storage: the private
// directory the media engine works in, and an S3 bucket results can be
// published to.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Static errors for storage operations.
var (
	// ErrNotFound is returned when reading or deleting a name that was never written.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidName is returned for names that would escape the flat namespace.
	ErrInvalidName = errors.New("storage: invalid name")
)

// ValidateName rejects empty names, names containing path separators and the
// dot entries. Names starting with a dot are reserved for internal files.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}
