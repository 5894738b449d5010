package tools

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
)

// MaxInputSize is the largest input file accepted by default.
const MaxInputSize int64 = 2 << 30

// ErrUnsupportedInput is returned when a file's type, extension or size does
// not match what a tool accepts. No engine state exists when it is returned.
var ErrUnsupportedInput = errors.New("unsupported input")

// knownKinds classifies extensions when the caller has no MIME type.
var knownKinds = map[string]MediaKind{
	"mp4": KindVideo, "mov": KindVideo, "m4v": KindVideo, "mkv": KindVideo,
	"avi": KindVideo, "webm": KindVideo, "3gp": KindVideo,
	"mp3": KindAudio, "wav": KindAudio, "flac": KindAudio, "aac": KindAudio,
	"ogg": KindAudio, "m4a": KindAudio, "opus": KindAudio,
}

// InputExt returns the lower-cased extension of name without the dot.
func InputExt(name string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedInput, name)
	}
	return ext, nil
}

// ValidateInput checks an input file against the tool's accepted set.
// An empty mimeType falls back to classifying the extension. maxSize <= 0
// applies MaxInputSize.
func (d Definition) ValidateInput(name, mimeType string, size, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxInputSize
	}
	if size > maxSize {
		return fmt.Errorf("%w: file size (%s) exceeds the %s limit",
			ErrUnsupportedInput, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(maxSize)))
	}

	ext, err := InputExt(name)
	if err != nil {
		return err
	}

	var kind MediaKind
	if family, _, ok := strings.Cut(strings.ToLower(mimeType), "/"); ok && family != "" {
		kind = MediaKind(family)
	} else {
		kind = knownKinds[ext]
	}
	if kind != d.Accepts {
		return fmt.Errorf("%w: %s expects a %s file, got %q", ErrUnsupportedInput, d.Tool, d.Accepts, name)
	}

	if len(d.Extensions) > 0 && !slices.Contains(d.Extensions, ext) {
		return fmt.Errorf("%w: %s accepts %s, got .%s",
			ErrUnsupportedInput, d.Tool, strings.ToUpper(strings.Join(d.Extensions, ", ")), ext)
	}
	return nil
}
