package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// State is the lifecycle state of a Session.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
	StateClosed  State = "closed"
)

// Status is a point-in-time view of a Session.
type Status struct {
	State State  `json:"state"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
	Tier  Tier   `json:"tier"`
}

// Session is the process-wide handle on one Engine. It is constructed
// explicitly and passed to every component that needs the engine.
//
// A Session loads its engine exactly once. Concurrent Initialize calls while a
// load is in flight wait for that load instead of starting another, and a
// failed load is never retried.
type Session struct {
	engine Engine
	tier   Tier
	logger *slog.Logger
	logs   *LogBuffer

	mu      sync.Mutex
	state   State
	loadErr error
	done    chan struct{}
	subs    map[int]func(string)
	nextSub int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTier sets the engine tier requested at load time.
func WithTier(tier Tier) SessionOption {
	return func(s *Session) {
		s.tier = tier
	}
}

// WithLogCapacity sets the number of log lines retained.
func WithLogCapacity(n int) SessionOption {
	return func(s *Session) {
		s.logs = NewLogBuffer(n)
	}
}

// WithSessionLogger sets the logger for session lifecycle messages.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession creates an idle session over e.
func NewSession(e Engine, opts ...SessionOption) *Session {
	s := &Session{
		engine: e,
		tier:   TierMulti,
		logger: slog.Default(),
		logs:   NewLogBuffer(DefaultLogCapacity),
		state:  StateIdle,
		subs:   make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads the engine. The first call performs the load; calls made
// while it is in flight block until it finishes (or ctx ends) and return the
// same outcome. After a failure every call returns the stored *InitError.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateFailed:
		err := s.loadErr
		s.mu.Unlock()
		return err
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case StateLoading:
		done := s.done
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("wait for engine load: %w", ctx.Err())
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == StateClosed {
			return ErrClosed
		}
		return s.loadErr
	}

	s.state = StateLoading
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("loading engine", slog.String("tier", string(s.tier)))
	s.engine.OnLog(s.appendLog)
	// A failed load is permanent, so the caller going away must not cause one.
	err := s.engine.Load(context.WithoutCancel(ctx), LoadConfig{Tier: s.tier})

	s.mu.Lock()
	if s.state == StateClosed {
		// Close ran during the load; it skipped the engine, so release it here.
		close(s.done)
		s.mu.Unlock()
		if err == nil {
			if closeErr := s.engine.Close(); closeErr != nil {
				s.logger.Warn("failed to close engine loaded after session close",
					slog.String("error", closeErr.Error()),
				)
			}
		}
		return ErrClosed
	}
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailed
		s.loadErr = &InitError{Err: err}
		s.logger.Error("engine failed to load", slog.String("error", err.Error()))
	} else {
		s.state = StateReady
		s.logger.Info("engine ready")
	}
	close(s.done)
	return s.loadErr
}

// IsReady reports whether the engine loaded successfully.
func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady
}

// LoadError returns the stored load failure, or nil.
func (s *Session) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Tier returns the tier the engine was (or will be) loaded with.
func (s *Session) Tier() Tier {
	return s.tier
}

// Status returns a snapshot of the session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, Ready: s.state == StateReady, Tier: s.tier}
	if s.loadErr != nil {
		st.Error = s.loadErr.Error()
	}
	return st
}

// Exec runs one command on the engine.
func (s *Session) Exec(ctx context.Context, args []string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.engine.Exec(ctx, args)
}

// WriteFile stores data in the engine sandbox.
func (s *Session) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.engine.WriteFile(ctx, name, data)
}

// ReadFile reads a sandbox entry.
func (s *Session) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.engine.ReadFile(ctx, name)
}

// DeleteFile removes a sandbox entry.
func (s *Session) DeleteFile(ctx context.Context, name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.engine.DeleteFile(ctx, name)
}

// LatestLog returns the most recent engine log line, or "".
func (s *Session) LatestLog() string {
	return s.logs.Latest()
}

// Logs returns the retained log lines, oldest first.
func (s *Session) Logs() []string {
	return s.logs.Lines()
}

// ClearLogs empties the log buffer.
func (s *Session) ClearLogs() {
	s.logs.Clear()
}

// SubscribeLogs registers fn to receive every engine log line as it is
// appended. The returned function unsubscribes.
func (s *Session) SubscribeLogs(fn func(line string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Close tears the engine down. The session cannot be used afterwards. A load
// still in flight is torn down by Initialize once it returns.
func (s *Session) Close() error {
	s.mu.Lock()
	loaded := s.state == StateReady
	s.state = StateClosed
	s.mu.Unlock()

	if !loaded {
		return nil
	}
	return s.engine.Close()
}

func (s *Session) appendLog(line string) {
	s.logs.Append(line)

	s.mu.Lock()
	subs := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(line)
	}
}

func (s *Session) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady:
		return nil
	case StateFailed:
		return s.loadErr
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotInitialized
	}
}
