package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/mediatools-api/internal/sandbox"
	"github.com/maauso/mediatools-api/internal/tools"
)

// Engine is the part of an engine session the runner drives.
type Engine interface {
	sandbox.Files
	Exec(ctx context.Context, args []string) error
}

// Spec describes one single-output command.
type Spec struct {
	// InputBytes is staged as "input.<InputExt>".
	InputBytes []byte
	InputExt   string
	// Args sit between the input and output names.
	Args []string
	// OutputName is the sandbox name the command writes.
	OutputName string
}

// SegmentSpec describes one output of a segmented command.
type SegmentSpec struct {
	Name       string
	Args       []string
	OutputName string
}

// DeliverFunc receives one segment's bytes. The segment's sandbox file is
// deleted after it returns.
type DeliverFunc func(ctx context.Context, seg SegmentSpec, data []byte) error

// Runner executes commands against the engine: stage the input, run, read
// the output back and delete every sandbox file it created. Callers must not
// run two jobs at once; the Guard enforces that.
type Runner struct {
	engine Engine
	files  *sandbox.Bridge
	logger *slog.Logger
	onExec func(args []string)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner over engine.
func NewRunner(engine Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine: engine,
		files:  sandbox.NewBridge(engine),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InputName returns the sandbox name of an input with extension ext.
func InputName(ext string) string {
	return "input." + ext
}

// Run executes one command and returns the output bytes. On failure nothing
// is returned and the sandbox is left empty.
func (r *Runner) Run(ctx context.Context, spec Spec) ([]byte, error) {
	return r.run(ctx, spec, nil)
}

func (r *Runner) run(ctx context.Context, spec Spec, onExec func([]string)) ([]byte, error) {
	input := InputName(spec.InputExt)
	if spec.OutputName == input {
		return nil, &Error{Kind: KindUnsupportedInput, Err: fmt.Errorf("output %q would overwrite the input", spec.OutputName)}
	}

	release, err := r.files.Stage(ctx, input, spec.InputBytes)
	if err != nil {
		return nil, &Error{Kind: KindIO, Err: err}
	}

	data, err := r.execAndRead(ctx, input, spec.Args, spec.OutputName, onExec)

	r.cleanup(ctx, release)
	if err != nil {
		return nil, err
	}
	r.deleteOutput(ctx, spec.OutputName)
	return data, nil
}

// RunSegments stages the input once and runs one command per segment, in
// order. Each output is delivered and deleted before the next command starts;
// the input is deleted last. The first failure stops the loop.
func (r *Runner) RunSegments(ctx context.Context, inputBytes []byte, inputExt string, segs []SegmentSpec, deliver DeliverFunc) error {
	return r.runSegments(ctx, inputBytes, inputExt, segs, deliver, nil)
}

func (r *Runner) runSegments(ctx context.Context, inputBytes []byte, inputExt string, segs []SegmentSpec, deliver DeliverFunc, onExec func([]string)) error {
	input := InputName(inputExt)
	for _, seg := range segs {
		if seg.OutputName == input {
			return &Error{Kind: KindUnsupportedInput, Err: fmt.Errorf("%w: segment %q would overwrite the input", tools.ErrInvalidSegment, seg.Name)}
		}
	}

	release, err := r.files.Stage(ctx, input, inputBytes)
	if err != nil {
		return &Error{Kind: KindIO, Err: err}
	}
	defer r.cleanup(ctx, release)

	for i, seg := range segs {
		data, err := r.execAndRead(ctx, input, seg.Args, seg.OutputName, onExec)
		if err != nil {
			return fmt.Errorf("segment %d (%s): %w", i+1, seg.Name, err)
		}

		deliverErr := deliver(ctx, seg, data)
		r.deleteOutput(ctx, seg.OutputName)
		if deliverErr != nil {
			return &Error{Kind: KindIO, Err: fmt.Errorf("deliver segment %s: %w", seg.Name, deliverErr)}
		}
	}
	return nil
}

// execAndRead runs one command and reads its output. On failure it removes
// any partial output.
func (r *Runner) execAndRead(ctx context.Context, input string, args []string, output string, onExec func([]string)) ([]byte, error) {
	argv := make([]string, 0, len(args)+3)
	argv = append(argv, "-i", input)
	argv = append(argv, args...)
	argv = append(argv, output)

	if onExec != nil {
		onExec(argv)
	}
	r.logger.Debug("executing engine command", slog.Any("args", argv))

	if err := r.engine.Exec(ctx, argv); err != nil {
		r.discardOutput(ctx, output)
		return nil, &Error{Kind: KindExecution, Err: err}
	}

	data, err := r.files.Read(ctx, output)
	if err != nil {
		r.discardOutput(ctx, output)
		return nil, &Error{Kind: KindIO, Err: err}
	}
	return data, nil
}

func (r *Runner) cleanup(ctx context.Context, release func(context.Context) error) {
	if err := release(ctx); err != nil {
		r.logger.Warn("failed to delete staged input", slog.String("error", err.Error()))
	}
}

func (r *Runner) deleteOutput(ctx context.Context, name string) {
	if err := r.files.Delete(ctx, name); err != nil {
		r.logger.Warn("failed to delete engine output",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	}
}

// discardOutput removes a partial output. A command that failed early may
// have written nothing, so a missing file is expected.
func (r *Runner) discardOutput(ctx context.Context, name string) {
	if err := r.files.Delete(ctx, name); err != nil && !errors.Is(err, sandbox.ErrNotFound) {
		r.logger.Warn("failed to delete partial output",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	}
}
