// Package tools holds the static per-tool configuration tables: which inputs a
// tool accepts, which output formats and quality presets it offers, and the
// engine argument fragment each (format, quality) pair maps to.
package tools

import (
	"errors"
	"fmt"
	"slices"
)

// Static errors for tool configuration lookups.
var (
	// ErrUnknownTool is returned when a tool name is not in the table.
	ErrUnknownTool = errors.New("tools: unknown tool")
	// ErrUnsupportedFormat is returned when an output format is not offered by a tool.
	ErrUnsupportedFormat = errors.New("tools: unsupported output format")
	// ErrUnsupportedQuality is returned when a quality preset is not offered for a format.
	ErrUnsupportedQuality = errors.New("tools: unsupported quality preset")
	// ErrNotSegmented is returned when segment arguments are requested from a single-output tool.
	ErrNotSegmented = errors.New("tools: tool does not produce segments")
)

// Tool identifies one media operation.
type Tool string

const (
	// VideoSplit cuts a video into time-bounded segments without re-encoding.
	VideoSplit Tool = "video-split"
	// AudioSplit cuts an audio file into time-bounded MP3 segments.
	AudioSplit Tool = "audio-split"
	// VideoConvert remuxes a video into another container.
	VideoConvert Tool = "video-convert"
	// AudioExtract pulls the audio track out of a video.
	AudioExtract Tool = "audio-extract"
	// AudioConvert transcodes audio between formats.
	AudioConvert Tool = "audio-convert"
)

// MediaKind is the MIME family a tool accepts as input.
type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
)

// Preset is one selectable quality level for a format.
type Preset struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Format is one selectable output format.
type Format struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description"`
	MimeType    string `json:"mime_type"`
	// Lossless formats expose no quality control.
	Lossless bool `json:"lossless"`
}

// Definition is the configuration table for one tool.
type Definition struct {
	Tool        Tool   `json:"tool"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// Accepts is the MIME family of accepted input files.
	Accepts MediaKind `json:"accepts"`
	// Extensions restricts accepted inputs further. Empty means any extension
	// within the MIME family.
	Extensions []string `json:"extensions,omitempty"`
	Formats    []Format `json:"formats,omitempty"`
	// Qualities maps a format value to its ordered preset ladder, cheapest first.
	Qualities     map[string][]Preset `json:"qualities,omitempty"`
	DefaultFormat string              `json:"default_format,omitempty"`
	// Segmented tools produce one output per segment.
	Segmented   bool   `json:"segmented"`
	SegmentExt  string `json:"segment_ext,omitempty"`
	SegmentMime string `json:"segment_mime,omitempty"`
}

var bitrateLadder = []Preset{
	{Value: "128k", Label: "128 kbps", Description: "Good"},
	{Value: "192k", Label: "192 kbps", Description: "High"},
	{Value: "256k", Label: "256 kbps", Description: "Very High"},
}

var mp3Ladder = append(slices.Clone(bitrateLadder),
	Preset{Value: "320k", Label: "320 kbps", Description: "Maximum"},
)

// Vorbis takes a quality scalar rather than a bitrate.
var vorbisLadder = []Preset{
	{Value: "6", Label: "Quality 6", Description: "Good (~192k)"},
	{Value: "8", Label: "Quality 8", Description: "High (~256k)"},
	{Value: "10", Label: "Quality 10", Description: "Maximum (~320k)"},
}

var audioFormats = []Format{
	{Value: "mp3", Label: "MP3", Description: "Most compatible", MimeType: "audio/mp3"},
	{Value: "wav", Label: "WAV", Description: "Uncompressed", MimeType: "audio/wav", Lossless: true},
	{Value: "aac", Label: "AAC", Description: "High efficiency", MimeType: "audio/aac"},
	{Value: "flac", Label: "FLAC", Description: "Lossless", MimeType: "audio/flac", Lossless: true},
	{Value: "ogg", Label: "OGG", Description: "Open source", MimeType: "audio/ogg"},
}

var table = []Definition{
	{
		Tool:        VideoSplit,
		Title:       "Video Splitter",
		Description: "Cut a video into segments without re-encoding",
		Accepts:     KindVideo,
		Extensions:  []string{"mp4", "mov", "m4v", "webm"},
		Segmented:   true,
		SegmentExt:  "mp4",
		SegmentMime: "video/mp4",
	},
	{
		Tool:        AudioSplit,
		Title:       "Audio Splitter",
		Description: "Cut an audio file into MP3 segments",
		Accepts:     KindAudio,
		Segmented:   true,
		SegmentExt:  "mp3",
		SegmentMime: "audio/mp3",
	},
	{
		Tool:        VideoConvert,
		Title:       "Video Converter",
		Description: "Change the container format with lossless stream copy",
		Accepts:     KindVideo,
		Extensions:  []string{"mp4", "mkv", "avi", "mov", "m4v"},
		Formats: []Format{
			{Value: "mp4", Label: "MP4", Description: "Most compatible", MimeType: "video/mp4", Lossless: true},
			{Value: "mkv", Label: "MKV", Description: "High quality container", MimeType: "video/mkv", Lossless: true},
			{Value: "avi", Label: "AVI", Description: "Legacy support", MimeType: "video/avi", Lossless: true},
			{Value: "mov", Label: "MOV", Description: "Apple format", MimeType: "video/mov", Lossless: true},
		},
		DefaultFormat: "mp4",
	},
	{
		Tool:        AudioExtract,
		Title:       "Audio Extractor",
		Description: "Extract the audio track from a video",
		Accepts:     KindVideo,
		Formats:     audioFormats,
		Qualities: map[string][]Preset{
			"mp3": mp3Ladder,
			"aac": bitrateLadder,
			"ogg": vorbisLadder,
		},
		DefaultFormat: "mp3",
	},
	{
		Tool:        AudioConvert,
		Title:       "Audio Converter",
		Description: "Convert audio between formats with quality control",
		Accepts:     KindAudio,
		Extensions:  []string{"mp3", "wav", "flac", "aac", "ogg", "m4a"},
		Formats: append(slices.Clone(audioFormats),
			Format{Value: "m4a", Label: "M4A", Description: "Apple format", MimeType: "audio/m4a"},
		),
		Qualities: map[string][]Preset{
			"mp3": mp3Ladder,
			"aac": bitrateLadder,
			"m4a": bitrateLadder,
			"ogg": vorbisLadder,
		},
		DefaultFormat: "mp3",
	},
}

// All returns every tool definition in display order.
func All() []Definition {
	return slices.Clone(table)
}

// Lookup returns the definition for a tool.
func Lookup(tool Tool) (Definition, error) {
	for _, d := range table {
		if d.Tool == tool {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
}

// Format returns the output format with the given value.
func (d Definition) Format(value string) (Format, error) {
	for _, f := range d.Formats {
		if f.Value == value {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("%w: %q for %s", ErrUnsupportedFormat, value, d.Tool)
}

// Presets returns the quality ladder for a format, or nil when the format has
// no quality control.
func (d Definition) Presets(format string) []Preset {
	return d.Qualities[format]
}

// DefaultQuality returns the preset selected when format becomes active: the
// second entry of its ladder, or the only entry of a one-step ladder. Formats
// without a ladder return "".
func (d Definition) DefaultQuality(format string) string {
	presets := d.Presets(format)
	switch len(presets) {
	case 0:
		return ""
	case 1:
		return presets[0].Value
	default:
		return presets[1].Value
	}
}

// MimeType returns the MIME type of outputs produced for format. Segmented
// tools ignore format.
func (d Definition) MimeType(format string) string {
	if d.Segmented {
		return d.SegmentMime
	}
	f, err := d.Format(format)
	if err != nil {
		return "application/octet-stream"
	}
	return f.MimeType
}

// OutputName returns the sandbox name of a single-output tool's result.
func (d Definition) OutputName(format string) string {
	return "output." + format
}

// Fragment returns the argument fragment placed between the input and output
// names for a single-output tool.
func (d Definition) Fragment(format, quality string) ([]string, error) {
	if d.Segmented {
		return nil, fmt.Errorf("%w: %s", ErrNotSegmented, d.Tool)
	}
	if _, err := d.Format(format); err != nil {
		return nil, err
	}
	if presets := d.Presets(format); len(presets) > 0 {
		if !slices.ContainsFunc(presets, func(p Preset) bool { return p.Value == quality }) {
			return nil, fmt.Errorf("%w: %q for %s", ErrUnsupportedQuality, quality, format)
		}
	}

	switch d.Tool {
	case VideoConvert:
		return []string{"-c", "copy", "-avoid_negative_ts", "make_zero", "-threads", "0"}, nil
	case AudioExtract:
		args := []string{"-threads", "0"}
		args = append(args, codecArgs(format, quality)...)
		return append(args, "-vn"), nil
	case AudioConvert:
		args := codecArgs(format, quality)
		return append(args, "-threads", "0"), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTool, d.Tool)
}

// SegmentFragment returns the argument fragment for one segment of a
// segmented tool.
func (d Definition) SegmentFragment(seg Segment) ([]string, error) {
	if !d.Segmented {
		return nil, fmt.Errorf("%w: %s", ErrNotSegmented, d.Tool)
	}
	args := []string{"-ss", seg.Start, "-to", seg.End}
	switch d.Tool {
	case VideoSplit:
		args = append(args, "-c", "copy")
	case AudioSplit:
		args = append(args, "-c:a", "libmp3lame", "-b:a", "192k")
	}
	return append(args, "-avoid_negative_ts", "make_zero"), nil
}

// SegmentOutputName returns the sandbox name of one segment's result.
func (d Definition) SegmentOutputName(seg Segment) string {
	return seg.Name + "." + d.SegmentExt
}

// codecArgs maps an audio format and quality to encoder flags.
func codecArgs(format, quality string) []string {
	switch format {
	case "mp3":
		return []string{"-codec:a", "libmp3lame", "-b:a", quality}
	case "wav":
		return []string{"-codec:a", "pcm_s16le"}
	case "aac", "m4a":
		return []string{"-codec:a", "aac", "-b:a", quality}
	case "flac":
		return []string{"-codec:a", "flac"}
	case "ogg":
		return []string{"-codec:a", "libvorbis", "-q:a", quality}
	}
	return nil
}
