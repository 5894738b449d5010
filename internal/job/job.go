// Package job runs media tools against the engine session. It includes the
// Job aggregate with its state machine, the Runner that drives one command
// through the sandbox, the single-flight Guard and the Service use case.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/mediatools-api/internal/job/id"
	"github.com/maauso/mediatools-api/internal/result"
	"github.com/maauso/mediatools-api/internal/tools"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusPending indicates the job was accepted but has not reached the engine.
	StatusPending Status = "PENDING"
	// StatusRunning indicates the engine is processing the job.
	StatusRunning Status = "RUNNING"
	// StatusSucceeded indicates every output was delivered.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailed indicates the job stopped with an error.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusRunning, StatusFailed},
	StatusRunning:   {StatusSucceeded, StatusFailed},
	StatusSucceeded: {},
	StatusFailed:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one tool invocation, from staging the input to publishing results.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Tool is the media tool the job runs.
	Tool tools.Tool
	// Format is the selected output format; empty for split tools.
	Format string
	// Quality is the selected quality preset, if the format has a ladder.
	Quality string
	// InputName is the caller's file name for the input.
	InputName string
	// InputSize is the input length in bytes.
	InputSize int64
	// Segments are the time ranges of a split job.
	Segments []tools.Segment
	// Commands holds every argument vector sent to the engine, in order.
	Commands [][]string
	// Status is the current job state.
	Status Status
	// Progress is the latest progress text reported by the engine.
	Progress string
	// ErrorKind classifies the failure of a FAILED job.
	ErrorKind Kind
	// Error is the single-line failure message of a FAILED job.
	Error string
	// Results are the published outputs. A FAILED split job keeps the
	// segments delivered before the failure.
	Results []result.Handle
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when the engine started on the job.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new PENDING Job with a generated ID.
func New(tool tools.Tool) *Job {
	return NewWithID(id.Generate(), tool)
}

// NewWithID creates a new PENDING Job with the specified ID.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string, tool tools.Tool) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Tool:      tool,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusSucceeded, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from PENDING to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Succeed records the published results and transitions to SUCCEEDED.
func (j *Job) Succeed(results []result.Handle) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusSucceeded); err != nil {
		return err
	}
	j.Results = append([]result.Handle(nil), results...)
	return nil
}

// AddResult records one output published while the job is still running.
func (j *Job) AddResult(h result.Handle) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Results = append(j.Results, h)
	j.UpdatedAt = time.Now()
}

// Fail records the failure and transitions to FAILED.
func (j *Job) Fail(kind Kind, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.ErrorKind = kind
	j.Error = errMsg
	return nil
}

// SetProgress records the latest progress text.
func (j *Job) SetProgress(text string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = text
	j.UpdatedAt = time.Now()
}

// AddCommand records an argument vector sent to the engine.
func (j *Job) AddCommand(args []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Commands = append(j.Commands, append([]string(nil), args...))
	j.UpdatedAt = time.Now()
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// Duration returns how long the engine worked on the job, or zero if it has
// not finished.
func (j *Job) Duration() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.StartedAt.IsZero() || j.CompletedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.StartedAt)
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	commands := make([][]string, len(j.Commands))
	for i, c := range j.Commands {
		commands[i] = append([]string(nil), c...)
	}

	return &Job{
		ID:          j.ID,
		Tool:        j.Tool,
		Format:      j.Format,
		Quality:     j.Quality,
		InputName:   j.InputName,
		InputSize:   j.InputSize,
		Segments:    append([]tools.Segment(nil), j.Segments...),
		Commands:    commands,
		Status:      j.Status,
		Progress:    j.Progress,
		ErrorKind:   j.ErrorKind,
		Error:       j.Error,
		Results:     append([]result.Handle(nil), j.Results...),
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
