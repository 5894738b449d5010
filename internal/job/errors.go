package job

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/mediatools-api/internal/engine"
	"github.com/maauso/mediatools-api/internal/sandbox"
	"github.com/maauso/mediatools-api/internal/tools"
)

// Kind classifies why a job could not finish.
type Kind string

const (
	// KindInitialization means the engine never became ready.
	KindInitialization Kind = "initialization"
	// KindUnsupportedInput means the input was rejected before reaching the engine.
	KindUnsupportedInput Kind = "unsupported_input"
	// KindExecution means the engine reported a failed command.
	KindExecution Kind = "execution"
	// KindIO means staging, reading or deleting a sandbox file failed.
	KindIO Kind = "io"
)

// ErrJobAlreadyRunning is returned when a job is submitted while another one
// holds the engine.
var ErrJobAlreadyRunning = errors.New("a job is already running")

// ErrJobNotFinished is returned when deleting a job that has not reached a
// terminal state.
var ErrJobNotFinished = errors.New("job has not finished")

// maxMessageLen bounds DisplayMessage output.
const maxMessageLen = 300

// Error is a classified job failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify returns the kind of err. Errors that carry no recognizable cause
// are execution failures.
func Classify(err error) Kind {
	var jobErr *Error
	var initErr *engine.InitError
	var ioErr *sandbox.IOError
	switch {
	case errors.As(err, &jobErr):
		return jobErr.Kind
	case errors.As(err, &initErr),
		errors.Is(err, engine.ErrNotInitialized),
		errors.Is(err, engine.ErrClosed):
		return KindInitialization
	case errors.Is(err, tools.ErrUnsupportedInput):
		return KindUnsupportedInput
	case errors.As(err, &ioErr):
		return KindIO
	default:
		return KindExecution
	}
}

// DisplayMessage renders err as one line suitable for a status field. Engine
// failures show the last meaningful engine log line instead of the full
// stderr dump.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var execErr *engine.ExecError
	if errors.As(err, &execErr) {
		if line := execErr.LastLine(); line != "" {
			msg = line
		} else {
			msg = execErr.Err.Error()
		}
	}
	msg = strings.Join(strings.Fields(msg), " ")
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "..."
	}
	return msg
}
