package engine

import "sync"

// DefaultLogCapacity is the number of engine log lines a session retains.
const DefaultLogCapacity = 50

// LogBuffer is a bounded, ordered buffer of log lines. Appending beyond
// capacity evicts the oldest line. It is safe for concurrent use.
type LogBuffer struct {
	mu    sync.RWMutex
	lines []string
	start int
	size  int
}

// NewLogBuffer creates a buffer holding up to capacity lines.
// A non-positive capacity uses DefaultLogCapacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBuffer{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest one when full.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.size) % len(b.lines)
	b.lines[idx] = line
	if b.size < len(b.lines) {
		b.size++
		return
	}
	b.start = (b.start + 1) % len(b.lines)
}

// Latest returns the most recent line, or "" when empty.
func (b *LogBuffer) Latest() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return ""
	}
	return b.lines[(b.start+b.size-1)%len(b.lines)]
}

// Lines returns the retained lines, oldest first.
func (b *LogBuffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.lines[(b.start+i)%len(b.lines)]
	}
	return out
}

// Len returns the number of retained lines.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the buffer capacity.
func (b *LogBuffer) Cap() int {
	return len(b.lines)
}

// Clear empties the buffer.
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.lines)
	b.start = 0
	b.size = 0
}
