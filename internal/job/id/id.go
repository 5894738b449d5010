// Package id provides unique identifier generation for jobs and results.
package id

import (
	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<uuid>
// Example: job-9b2f6c1e-3a4d-4f5e-8a7b-1c2d3e4f5a6b
func Generate() string {
	return New("job")
}

// New creates a unique ID with the given prefix, e.g. "res-<uuid>".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
