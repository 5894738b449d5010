package job

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/maauso/mediatools-api/internal/engine"
	"github.com/maauso/mediatools-api/internal/storage"
)

// fakeEngine is an in-memory engine. Exec writes "<input>|<args>" to the
// output name (the last argument) and fails on empty input, the way ffmpeg
// rejects a zero-length file. failOnExec makes the Nth exec (1-based) fail
// as well.
type fakeEngine struct {
	mu      sync.Mutex
	files   map[string][]byte
	calls   []string
	execs   [][]string
	deletes []string
	logFn   func(string)
	gate    chan struct{}
	entered chan struct{}
	loadErr    error
	failOnExec int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{files: make(map[string][]byte)}
}

func (f *fakeEngine) Load(context.Context, engine.LoadConfig) error {
	return f.loadErr
}

func (f *fakeEngine) Exec(ctx context.Context, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, "exec")
	f.execs = append(f.execs, append([]string(nil), args...))
	gate, entered, logFn := f.gate, f.entered, f.logFn
	f.mu.Unlock()

	if logFn != nil {
		logFn("size=       1kB time=00:00:01.00")
	}
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	input := args[1]
	output := args[len(args)-1]

	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[input]
	if !ok || len(data) == 0 || len(f.execs) == f.failOnExec {
		return &engine.ExecError{
			Args:   args,
			Stderr: fmt.Sprintf("Input #0\n%s: Invalid data found when processing input\n", input),
			Err:    errors.New("exit status 1"),
		}
	}
	f.files[output] = []byte(fmt.Sprintf("%s|%v", data, args[2:len(args)-1]))
	return nil
}

func (f *fakeEngine) WriteFile(_ context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "write "+name)
	f.files[name] = append([]byte(nil), data...)
	return nil
}

func (f *fakeEngine) ReadFile(_ context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "read "+name)
	data, ok := f.files[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (f *fakeEngine) DeleteFile(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete "+name)
	f.deletes = append(f.deletes, name)
	if _, ok := f.files[name]; !ok {
		return storage.ErrNotFound
	}
	delete(f.files, name)
	return nil
}

func (f *fakeEngine) OnLog(fn func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logFn = fn
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) snapshot() (calls []string, execs [][]string, deletes []string, files int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), append([][]string(nil), f.execs...),
		append([]string(nil), f.deletes...), len(f.files)
}
