// Package engine owns the one media-processing engine a process drives: the
// engine contract, the ffmpeg-backed implementation, and the Session that
// loads it once, tracks readiness and keeps the bounded log buffer.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// Static errors for engine operations.
var (
	// ErrNotLoaded is returned when an engine is used before Load succeeded.
	ErrNotLoaded = errors.New("engine: not loaded")
	// ErrNotInitialized is returned when a session is used before it is ready.
	ErrNotInitialized = errors.New("engine: session not initialized")
	// ErrClosed is returned when a session is used after Close.
	ErrClosed = errors.New("engine: session closed")
)

// Engine is an opaque asynchronous command executor over a private, flat
// virtual filesystem. Implementations run one command at a time; callers must
// not overlap Exec calls.
type Engine interface {
	// Load prepares the engine for use. It is called at most once.
	Load(ctx context.Context, cfg LoadConfig) error

	// Exec runs one command with the given argument vector and blocks until
	// the engine reports completion or failure.
	Exec(ctx context.Context, args []string) error

	// WriteFile stores data under name in the engine's sandbox.
	WriteFile(ctx context.Context, name string, data []byte) error

	// ReadFile returns the content stored under name.
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// DeleteFile removes name from the sandbox.
	DeleteFile(ctx context.Context, name string) error

	// OnLog registers the receiver of engine log lines. Lines may arrive from
	// any goroutine while Exec runs.
	OnLog(fn func(line string))

	// Close releases the engine and its sandbox.
	Close() error
}

// LoadConfig is passed to Engine.Load.
type LoadConfig struct {
	Tier Tier
}

// InitError wraps the cause of a failed engine load. A session that failed to
// load keeps returning the same InitError; recovery is a process restart.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("engine failed to load: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
