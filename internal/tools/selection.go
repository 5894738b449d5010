package tools

import (
	"fmt"
	"slices"
)

// Selection is the user's current (format, quality) choice for a tool.
// Changing the format resets the quality to that format's default preset so a
// stale quality from another format is never carried over.
type Selection struct {
	def     Definition
	format  string
	quality string
}

// NewSelection returns a selection on the tool's default format and that
// format's default quality.
func NewSelection(tool Tool) (*Selection, error) {
	def, err := Lookup(tool)
	if err != nil {
		return nil, err
	}
	s := &Selection{def: def}
	if def.DefaultFormat != "" {
		if err := s.SetFormat(def.DefaultFormat); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Definition returns the table backing this selection.
func (s *Selection) Definition() Definition { return s.def }

// Format returns the selected output format.
func (s *Selection) Format() string { return s.format }

// Quality returns the selected quality preset, or "" for formats without one.
func (s *Selection) Quality() string { return s.quality }

// SetFormat selects an output format and resets the quality preset.
func (s *Selection) SetFormat(format string) error {
	if _, err := s.def.Format(format); err != nil {
		return err
	}
	s.format = format
	s.quality = s.def.DefaultQuality(format)
	return nil
}

// SetQuality selects a preset from the current format's ladder.
func (s *Selection) SetQuality(quality string) error {
	presets := s.def.Presets(s.format)
	if len(presets) == 0 {
		if quality == "" {
			return nil
		}
		return fmt.Errorf("%w: %s has no quality presets", ErrUnsupportedQuality, s.format)
	}
	if !slices.ContainsFunc(presets, func(p Preset) bool { return p.Value == quality }) {
		return fmt.Errorf("%w: %q for %s", ErrUnsupportedQuality, quality, s.format)
	}
	s.quality = quality
	return nil
}

// Args returns the argument fragment for the current selection.
func (s *Selection) Args() ([]string, error) {
	return s.def.Fragment(s.format, s.quality)
}

// OutputName returns the sandbox name for the current selection's result.
func (s *Selection) OutputName() string {
	return s.def.OutputName(s.format)
}

// MimeType returns the MIME type of the current selection's result.
func (s *Selection) MimeType() string {
	return s.def.MimeType(s.format)
}
