package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpegScript answers -version, records its argv into args.txt in the
// working directory, prints progress on stderr and fails when an argument
// contains "corrupt".
const fakeFFmpegScript = `#!/bin/sh
for a in "$@"; do
  if [ "$a" = "-version" ]; then echo "ffmpeg version 6.1-fake"; exit 0; fi
done
printf '%s\n' "$@" > args.txt
printf 'Input #0, mov,mp4\nframe=    1\rframe=    2\rsize=      10kB\n' >&2
case "$*" in
  *corrupt*) echo "input.mp4: Invalid data found when processing input" >&2; exit 1;;
esac
exit 0
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

// skipIfNoFFmpeg skips the test if ffmpeg is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

// loadFake loads an engine over the fake script and returns it together with
// its private working directory.
func loadFake(t *testing.T, tier Tier) (*FFmpegEngine, string) {
	t.Helper()
	sandbox := filepath.Join(t.TempDir(), "sandbox")
	e := NewFFmpegEngine(writeFakeFFmpeg(t), sandbox)
	require.NoError(t, e.Load(context.Background(), LoadConfig{Tier: tier}))
	t.Cleanup(func() { _ = e.Close() })
	return e, e.dir.Root()
}

func TestFFmpegEngine_NotLoaded(t *testing.T) {
	e := NewFFmpegEngine("", t.TempDir())
	assert.Equal(t, "ffmpeg", e.ffmpegPath)

	assert.ErrorIs(t, e.Exec(context.Background(), []string{"-i", "x"}), ErrNotLoaded)
	assert.ErrorIs(t, e.WriteFile(context.Background(), "x", nil), ErrNotLoaded)
	_, err := e.ReadFile(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.NoError(t, e.Close())
}

func TestFFmpegEngine_LoadMissingBinary(t *testing.T) {
	e := NewFFmpegEngine(filepath.Join(t.TempDir(), "no-such-ffmpeg"), t.TempDir())
	err := e.Load(context.Background(), LoadConfig{Tier: TierMulti})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg not found")
}

func TestFFmpegEngine_ExecStreamsLogLines(t *testing.T) {
	e, sandbox := loadFake(t, TierMulti)

	var mu sync.Mutex
	var lines []string
	e.OnLog(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	})

	require.NoError(t, e.Exec(context.Background(), []string{"-i", "input.mp4", "output.mp4"}))

	mu.Lock()
	assert.Equal(t, []string{"Input #0, mov,mp4", "frame=    1", "frame=    2", "size=      10kB"}, lines)
	mu.Unlock()

	recorded, err := os.ReadFile(filepath.Join(sandbox, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "-hide_banner\n-nostdin\n-y\n-i\ninput.mp4\noutput.mp4\n", string(recorded))
}

func TestFFmpegEngine_SingleTierPinsThreads(t *testing.T) {
	e, sandbox := loadFake(t, TierSingle)

	require.NoError(t, e.Exec(context.Background(), []string{"-i", "input.wav", "output.mp3"}))

	recorded, err := os.ReadFile(filepath.Join(sandbox, "args.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(recorded), "-hide_banner\n-nostdin\n-y\n-threads\n1\n-i\n"))
}

func TestFFmpegEngine_ExecFailure(t *testing.T) {
	e, _ := loadFake(t, TierMulti)

	err := e.Exec(context.Background(), []string{"-i", "corrupt.mp4", "output.mp4"})
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, []string{"-i", "corrupt.mp4", "output.mp4"}, execErr.Args)
	assert.Equal(t, "input.mp4: Invalid data found when processing input", execErr.LastLine())
	assert.Contains(t, execErr.Error(), "ffmpeg error")
}

func TestFFmpegEngine_FileRoundTrip(t *testing.T) {
	e, _ := loadFake(t, TierMulti)
	ctx := context.Background()

	require.NoError(t, e.WriteFile(ctx, "input.mp4", []byte("movie")))
	data, err := e.ReadFile(ctx, "input.mp4")
	require.NoError(t, err)
	assert.Equal(t, "movie", string(data))
	require.NoError(t, e.DeleteFile(ctx, "input.mp4"))
	_, err = e.ReadFile(ctx, "input.mp4")
	assert.Error(t, err)
}

func TestFFmpegEngine_EnginesShareParentPrivately(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "sandbox")
	ffmpeg := writeFakeFFmpeg(t)

	first := NewFFmpegEngine(ffmpeg, parent)
	require.NoError(t, first.Load(context.Background(), LoadConfig{Tier: TierMulti}))
	t.Cleanup(func() { _ = first.Close() })
	second := NewFFmpegEngine(ffmpeg, parent)
	require.NoError(t, second.Load(context.Background(), LoadConfig{Tier: TierMulti}))
	t.Cleanup(func() { _ = second.Close() })

	assert.NotEqual(t, first.dir.Root(), second.dir.Root())
	assert.Equal(t, parent, filepath.Dir(first.dir.Root()))

	require.NoError(t, first.WriteFile(context.Background(), "input.mp4", []byte("one")))
	_, err := second.ReadFile(context.Background(), "input.mp4")
	assert.Error(t, err)
}

func TestFFmpegEngine_CloseKeepsConfiguredDirectory(t *testing.T) {
	videos := filepath.Join(t.TempDir(), "videos")
	require.NoError(t, os.MkdirAll(videos, 0o750))
	userFile := filepath.Join(videos, "holiday.mp4")
	require.NoError(t, os.WriteFile(userFile, []byte("memories"), 0o600))

	e := NewFFmpegEngine(writeFakeFFmpeg(t), videos)
	require.NoError(t, e.Load(context.Background(), LoadConfig{Tier: TierMulti}))
	private := e.dir.Root()
	require.NoError(t, e.WriteFile(context.Background(), "input.mp4", []byte("movie")))

	require.NoError(t, e.Close())

	data, err := os.ReadFile(userFile)
	require.NoError(t, err)
	assert.Equal(t, "memories", string(data))
	assert.DirExists(t, videos)
	_, err = os.Stat(private)
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, e.Exec(context.Background(), nil), ErrNotLoaded)
}

func TestFFmpegEngine_LoadSweepsStaleSandboxes(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "sandbox")
	stale := filepath.Join(parent, sandboxPrefix+"crashed")
	require.NoError(t, os.MkdirAll(stale, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(stale, lockFileName), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "input.mp4"), []byte("left over"), 0o600))
	unlocked := filepath.Join(parent, sandboxPrefix+"notes")
	require.NoError(t, os.MkdirAll(unlocked, 0o750))

	e := NewFFmpegEngine(writeFakeFFmpeg(t), parent)
	require.NoError(t, e.Load(context.Background(), LoadConfig{Tier: TierMulti}))
	t.Cleanup(func() { _ = e.Close() })

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	assert.DirExists(t, unlocked, "directories without a lock file are not ours")
}

func TestFFmpegEngine_LoadKeepsLiveSandbox(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "sandbox")
	ffmpeg := writeFakeFFmpeg(t)

	first := NewFFmpegEngine(ffmpeg, parent)
	require.NoError(t, first.Load(context.Background(), LoadConfig{Tier: TierMulti}))
	t.Cleanup(func() { _ = first.Close() })
	require.NoError(t, first.WriteFile(context.Background(), "input.mp4", []byte("busy")))

	second := NewFFmpegEngine(ffmpeg, parent)
	require.NoError(t, second.Load(context.Background(), LoadConfig{Tier: TierMulti}))
	t.Cleanup(func() { _ = second.Close() })

	data, err := first.ReadFile(context.Background(), "input.mp4")
	require.NoError(t, err)
	assert.Equal(t, "busy", string(data))
}

func TestFFmpegEngine_RealBinaryRejectsEmptyInput(t *testing.T) {
	skipIfNoFFmpeg(t)

	e := NewFFmpegEngine("", filepath.Join(t.TempDir(), "sandbox"))
	require.NoError(t, e.Load(context.Background(), LoadConfig{Tier: TierMulti}))
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.WriteFile(context.Background(), "input.wav", nil))
	err := e.Exec(context.Background(), []string{"-i", "input.wav", "output.mp3"})
	var execErr *ExecError
	assert.ErrorAs(t, err, &execErr)
}

func TestScanLogLines(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"frame=1\rnext", "frame=1"},
		{"line\nnext", "line"},
		{"", ""},
	}
	for _, tt := range tests {
		_, tok, err := scanLogLines([]byte(tt.in), true)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(tok))
	}
}

func TestLastMeaningfulLine(t *testing.T) {
	assert.Equal(t, "", lastMeaningfulLine(""))
	assert.Equal(t, "boom", lastMeaningfulLine("a\nboom\n\n  \r"))
	long := strings.Repeat("x", 300)
	assert.Equal(t, strings.Repeat("x", 200)+"...", lastMeaningfulLine(long))
}
