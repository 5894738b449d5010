package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/maauso/mediatools-api/internal/storage"
)

// maxStderrTail bounds the stderr kept for error reporting.
const maxStderrTail = 64 * 1024

// lockFileName is the sandbox entry that marks ownership by one engine.
const lockFileName = ".engine.lock"

// sandboxPrefix names the private directories engines create under the
// configured sandbox root.
const sandboxPrefix = "engine-"

// FFmpegEngine implements Engine using the ffmpeg CLI. Every command runs with
// the sandbox directory as its working directory, so argument vectors address
// sandbox entries by bare name.
type FFmpegEngine struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	sandboxDir string
	logger     *slog.Logger

	mu         sync.Mutex
	dir        *storage.Dir
	lock       *flock.Flock
	globalArgs []string
	logFn      func(string)
}

// FFmpegOption configures an FFmpegEngine.
type FFmpegOption func(*FFmpegEngine)

// WithLogger sets the logger used for engine lifecycle messages.
func WithLogger(logger *slog.Logger) FFmpegOption {
	return func(e *FFmpegEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewFFmpegEngine creates a new FFmpegEngine.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegEngine(ffmpegPath, sandboxDir string, opts ...FFmpegOption) *FFmpegEngine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if sandboxDir == "" {
		sandboxDir = storage.DefaultRoot()
	}
	e := &FFmpegEngine{
		ffmpegPath: ffmpegPath,
		sandboxDir: sandboxDir,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load resolves and probes the ffmpeg binary, creates the sandbox directory and
// takes an exclusive lock on it.
func (e *FFmpegEngine) Load(ctx context.Context, cfg LoadConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	path, err := exec.LookPath(e.ffmpegPath)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}

	// #nosec G204 - path is resolved from application configuration
	probe := exec.CommandContext(ctx, path, "-hide_banner", "-version")
	out, err := probe.Output()
	if err != nil {
		return fmt.Errorf("probe ffmpeg: %w", err)
	}

	e.sweepStaleSandboxes()

	// The configured directory is only a parent: the engine works in, and
	// on Close removes, a private directory it created itself.
	dir, err := storage.NewPrivateDir(e.sandboxDir, sandboxPrefix+"*")
	if err != nil {
		return err
	}

	lock := flock.New(filepath.Join(dir.Root(), lockFileName))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		_ = dir.RemoveAll()
		if err == nil {
			err = errors.New("held by another process")
		}
		return fmt.Errorf("acquire sandbox lock: %w", err)
	}

	e.ffmpegPath = path
	e.dir = dir
	e.lock = lock
	e.globalArgs = []string{"-hide_banner", "-nostdin", "-y"}
	if cfg.Tier == TierSingle {
		e.globalArgs = append(e.globalArgs, "-threads", "1")
	}

	e.logger.Info("ffmpeg engine loaded",
		slog.String("path", path),
		slog.String("version", firstLine(string(out))),
		slog.String("sandbox", dir.Root()),
		slog.String("tier", string(cfg.Tier)),
	)
	return nil
}

// Exec runs ffmpeg with args. Every stderr line (ffmpeg ends progress lines
// with a carriage return) is forwarded to the log receiver as it arrives.
func (e *FFmpegEngine) Exec(ctx context.Context, args []string) error {
	dir, err := e.sandbox()
	if err != nil {
		return err
	}

	e.mu.Lock()
	fullArgs := append(append([]string{}, e.globalArgs...), args...)
	logFn := e.logFn
	e.mu.Unlock()

	// #nosec G204 - ffmpegPath is set by the application; args are built from static tables
	cmd := exec.CommandContext(ctx, e.ffmpegPath, fullArgs...)
	cmd.Dir = dir.Root()

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attach stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	tail := &tailBuffer{max: maxStderrTail}
	scanner := bufio.NewScanner(io.TeeReader(stderr, tail))
	scanner.Split(scanLogLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && logFn != nil {
			logFn(line)
		}
	}
	// Drain whatever the scanner refused (over-long lines) so Wait does not block.
	_, _ = io.Copy(tail, stderr)

	if err := cmd.Wait(); err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &ExecError{
			Args:   args,
			Stderr: tail.String(),
			Err:    err,
		}
	}
	return nil
}

// WriteFile stores data in the sandbox.
func (e *FFmpegEngine) WriteFile(ctx context.Context, name string, data []byte) error {
	dir, err := e.sandbox()
	if err != nil {
		return err
	}
	return dir.Write(ctx, name, data)
}

// ReadFile reads a sandbox entry.
func (e *FFmpegEngine) ReadFile(ctx context.Context, name string) ([]byte, error) {
	dir, err := e.sandbox()
	if err != nil {
		return nil, err
	}
	return dir.Read(ctx, name)
}

// DeleteFile removes a sandbox entry.
func (e *FFmpegEngine) DeleteFile(ctx context.Context, name string) error {
	dir, err := e.sandbox()
	if err != nil {
		return err
	}
	return dir.Delete(ctx, name)
}

// OnLog sets the receiver of stderr lines.
func (e *FFmpegEngine) OnLog(fn func(line string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logFn = fn
}

// sweepStaleSandboxes removes private sandboxes left behind by engines that
// exited without Close. A sandbox whose lock can be taken has no live owner.
// Directories without a lock file are never touched.
func (e *FFmpegEngine) sweepStaleSandboxes() {
	entries, err := os.ReadDir(e.sandboxDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), sandboxPrefix) {
			continue
		}
		root := filepath.Join(e.sandboxDir, entry.Name())
		lockPath := filepath.Join(root, lockFileName)
		if _, err := os.Stat(lockPath); err != nil {
			continue
		}
		lock := flock.New(lockPath)
		if ok, err := lock.TryLock(); err != nil || !ok {
			continue
		}
		err := os.RemoveAll(root)
		_ = lock.Unlock()
		if err != nil {
			e.logger.Warn("failed to remove stale sandbox",
				slog.String("sandbox", root),
				slog.String("error", err.Error()),
			)
			continue
		}
		e.logger.Info("removed stale sandbox", slog.String("sandbox", root))
	}
}

// Close releases the sandbox lock and removes the engine's private directory.
// The configured parent directory and anything else in it are left alone.
func (e *FFmpegEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dir == nil {
		return nil
	}
	var errs []error
	if err := e.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release sandbox lock: %w", err))
	}
	if err := e.dir.RemoveAll(); err != nil {
		errs = append(errs, fmt.Errorf("remove sandbox: %w", err))
	}
	e.dir = nil
	e.lock = nil
	return errors.Join(errs...)
}

func (e *FFmpegEngine) sandbox() (*storage.Dir, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dir == nil {
		return nil, ErrNotLoaded
	}
	return e.dir, nil
}

// ExecError represents a failed engine command, including the stderr output.
type ExecError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// LastLine returns the last meaningful stderr line, truncated to 200 bytes.
func (e *ExecError) LastLine() string {
	return lastMeaningfulLine(e.Stderr)
}

func lastMeaningfulLine(output string) string {
	lines := strings.FieldsFunc(output, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if len(line) > 200 {
			return line[:200] + "..."
		}
		return line
	}
	return ""
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

// scanLogLines is a bufio.SplitFunc that treats both '\n' and '\r' as line
// terminators.
func scanLogLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

// Verify interface implementation at compile time.
var _ Engine = (*FFmpegEngine)(nil)
