package tools

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Static errors for segment validation.
var (
	// ErrInvalidTimestamp is returned when a timestamp is not HH:MM:SS.
	ErrInvalidTimestamp = errors.New("tools: invalid timestamp")
	// ErrInvalidSegment is returned when a segment's bounds or name are unusable.
	ErrInvalidSegment = errors.New("tools: invalid segment")
	// ErrNoSegments is returned when a segmented tool is given no segments.
	ErrNoSegments = errors.New("tools: at least one segment is required")
)

// Segment is one time-bounded output of a split.
type Segment struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Name  string `json:"name,omitempty"`
}

// ParseTimestamp parses HH:MM:SS with optional fractional seconds.
func ParseTimestamp(ts string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || seconds < 0 || seconds >= 60 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
	}
	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	return d + time.Duration(seconds*float64(time.Second)), nil
}

// FormatTimestamp renders d as HH:MM:SS, truncating sub-second precision.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// DefaultSegmentName returns the name given to the i-th segment (zero based).
func DefaultSegmentName(i int) string {
	return fmt.Sprintf("segment_%d", i+1)
}

// Validate checks that both bounds parse, the end is after the start and the
// name is usable as a flat sandbox name.
func (s Segment) Validate() error {
	start, err := ParseTimestamp(s.Start)
	if err != nil {
		return err
	}
	end, err := ParseTimestamp(s.End)
	if err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalidSegment, s.End, s.Start)
	}
	if s.Name == "" || strings.ContainsAny(s.Name, `/\`) || strings.HasPrefix(s.Name, ".") {
		return fmt.Errorf("%w: bad name %q", ErrInvalidSegment, s.Name)
	}
	return nil
}

// NormalizeSegments fills in default names, validates every segment and
// rejects duplicate names, which would overwrite each other in the sandbox.
func NormalizeSegments(segs []Segment) ([]Segment, error) {
	if len(segs) == 0 {
		return nil, ErrNoSegments
	}
	out := make([]Segment, len(segs))
	seen := make(map[string]struct{}, len(segs))
	for i, s := range segs {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			s.Name = DefaultSegmentName(i)
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i+1, err)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("segment %d: %w: duplicate name %q", i+1, ErrInvalidSegment, s.Name)
		}
		seen[s.Name] = struct{}{}
		out[i] = s
	}
	return out, nil
}
