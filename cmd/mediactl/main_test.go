package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediatools-api/internal/job"
	"github.com/maauso/mediatools-api/internal/tools"
)

// fakeFFmpegScript answers the version probe and otherwise writes a marker
// into its last argument, which is always the output name. Inputs containing
// "corrupt" fail the way ffmpeg does on unreadable media.
const fakeFFmpegScript = `#!/bin/sh
for a in "$@"; do
  if [ "$a" = "-version" ]; then echo "ffmpeg version 6.1-fake"; exit 0; fi
done
if grep -q corrupt input.* 2>/dev/null; then
  echo "input.mp4: Invalid data found when processing input" >&2
  exit 1
fi
for last; do :; done
printf 'frame=    1\rsize=       1kB time=00:00:01.00\n' >&2
printf 'converted' > "$last"
`

func writeFakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg script requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(fakeFFmpegScript), 0o755))
	return path
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestToolsCommand_List(t *testing.T) {
	out, _, err := runCLI(t, "tools")
	require.NoError(t, err)

	for _, def := range tools.All() {
		assert.Contains(t, out, string(def.Tool))
	}
	assert.Contains(t, out, "mp4 segments")
}

func TestToolsCommand_Detail(t *testing.T) {
	out, _, err := runCLI(t, "tools", "audio-extract")
	require.NoError(t, err)

	assert.Contains(t, out, "Audio Extractor")
	assert.Contains(t, out, "192k*")
	assert.Contains(t, out, "mp3*")

	_, _, err = runCLI(t, "tools", "resize")
	assert.ErrorIs(t, err, tools.ErrUnknownTool)
}

func TestRunCommand_WritesResult(t *testing.T) {
	ffmpeg := writeFakeFFmpeg(t)
	input := writeInput(t, "talk.mp4", "video")
	outDir := filepath.Join(t.TempDir(), "out")

	out, _, err := runCLI(t, "run", "audio-extract", input,
		"--ffmpeg", ffmpeg,
		"--sandbox", filepath.Join(t.TempDir(), "sandbox"),
		"--format", "mp3", "--quality", "320k",
		"--out", outDir,
	)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "talk.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "converted", string(data))
	assert.Contains(t, out, "wrote "+filepath.Join(outDir, "talk.mp3"))
}

func TestRunCommand_Segments(t *testing.T) {
	ffmpeg := writeFakeFFmpeg(t)
	input := writeInput(t, "talk.wav", "audio")
	outDir := t.TempDir()

	_, _, err := runCLI(t, "run", "audio-split", input,
		"--ffmpeg", ffmpeg,
		"--sandbox", filepath.Join(t.TempDir(), "sandbox"),
		"--segment", "00:00:00,00:00:10,intro",
		"--segment", "00:00:10,00:00:20",
		"--out", outDir,
	)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(outDir, "intro.mp3"))
	assert.FileExists(t, filepath.Join(outDir, "segment_2.mp3"))
}

func TestRunCommand_EngineFailure(t *testing.T) {
	ffmpeg := writeFakeFFmpeg(t)
	input := writeInput(t, "broken.mp4", "corrupt")

	_, _, err := runCLI(t, "run", "video-convert", input,
		"--ffmpeg", ffmpeg,
		"--sandbox", filepath.Join(t.TempDir(), "sandbox"),
		"--out", t.TempDir(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video-convert failed (execution)")
	assert.Contains(t, err.Error(), "Invalid data found when processing input")
}

func TestRunCommand_RejectsInputBeforeEngine(t *testing.T) {
	input := writeInput(t, "notes.txt", "text")

	_, _, err := runCLI(t, "run", "audio-convert", input,
		"--ffmpeg", filepath.Join(t.TempDir(), "missing-ffmpeg"),
		"--sandbox", filepath.Join(t.TempDir(), "sandbox"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported input")
}

func TestParseSegmentFlags(t *testing.T) {
	segs, err := parseSegmentFlags([]string{"00:00:00,00:01:00", " 00:01:00 , 00:02:00 , outro "})
	require.NoError(t, err)
	assert.Equal(t, []tools.Segment{
		{Start: "00:00:00", End: "00:01:00"},
		{Start: "00:01:00", End: "00:02:00", Name: "outro"},
	}, segs)

	_, err = parseSegmentFlags([]string{"00:00:00"})
	assert.Error(t, err)
	_, err = parseSegmentFlags([]string{"a,b,c,d"})
	assert.Error(t, err)
}

func TestProgressPrinter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	p.Print(job.Event{Phase: job.PhaseStarted, Message: "Starting audio converter..."})
	p.Print(job.Event{Phase: job.PhaseProgress, Message: "size=  10kB"})
	p.Print(job.Event{Phase: job.PhaseProgress})
	p.Print(job.Event{Phase: job.PhaseFailed, Message: "Failed", Error: "Invalid data"})
	p.Done()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"[started] Starting audio converter...",
		"[progress] size=  10kB",
		"[failed] Invalid data",
	}, lines)
}

func TestProgressPrinter_Inline(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{w: &buf, inline: true}

	p.Print(job.Event{Phase: job.PhaseProgress, Message: "size=  10kB"})
	p.Print(job.Event{Phase: job.PhaseProgress, Message: "size=  20kB"})
	p.Print(job.Event{Phase: job.PhaseSucceeded, Message: "Completed"})

	assert.Equal(t, "\r\033[Ksize=  10kB\r\033[Ksize=  20kB\n[succeeded] Completed\n", buf.String())
}

func TestFollowEvents(t *testing.T) {
	var buf bytes.Buffer
	events := make(chan job.Event, 2)
	events <- job.Event{Phase: job.PhaseStarted, Message: "Starting video splitter..."}
	events <- job.Event{Phase: job.PhaseSucceeded, Message: "Completed"}
	close(events)

	require.NoError(t, followEvents(context.Background(), events, newProgressPrinter(&buf)))
	assert.Equal(t, "[started] Starting video splitter...\n[succeeded] Completed\n", buf.String())
}

func TestFollowEvents_StopsOnInterrupt(t *testing.T) {
	var buf bytes.Buffer
	events := make(chan job.Event)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- followEvents(ctx, events, newProgressPrinter(&buf)) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("followEvents kept waiting after the context was cancelled")
	}
}
