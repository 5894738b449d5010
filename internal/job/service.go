package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maauso/mediatools-api/internal/progress"
	"github.com/maauso/mediatools-api/internal/result"
	"github.com/maauso/mediatools-api/internal/tools"
)

// Session is the engine session the service drives. *engine.Session
// satisfies it.
type Session interface {
	Engine
	Initialize(ctx context.Context) error
	LatestLog() string
	ClearLogs()
}

// Metrics receives job outcomes.
type Metrics interface {
	JobFinished(tool string, status string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) JobFinished(string, string, time.Duration) {}

// Request is a job submission.
type Request struct {
	Tool tools.Tool
	// Format and Quality select the output; empty values take the tool's
	// defaults. Split tools ignore both.
	Format  string
	Quality string
	// Segments are required by split tools and ignored by the others.
	Segments []tools.Segment
	// InputName is the caller's file name; its extension selects the
	// sandbox input name.
	InputName string
	// MimeType is the caller-reported type; empty falls back to the extension.
	MimeType string
	Input    []byte
}

// plan is a validated request ready to run.
type plan struct {
	def      tools.Definition
	ext      string
	format   string
	quality  string
	args     []string
	output   string
	segments []tools.Segment
	specs    []SegmentSpec
}

// Service runs tool jobs one at a time against the engine session and
// publishes their results.
type Service struct {
	session  Session
	runner   *Runner
	repo     Repository
	results  *result.Materializer
	guard    *Guard
	broker   *Broker
	metrics  Metrics
	logger   *slog.Logger
	clock    progress.Clock
	interval time.Duration
	maxInput int64

	mu      sync.Mutex
	running map[string]chan struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithProgressClock sets the clock driving the progress observer.
func WithProgressClock(c progress.Clock) ServiceOption {
	return func(s *Service) {
		s.clock = c
	}
}

// WithProgressInterval sets how often progress is sampled.
func WithProgressInterval(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxInputSize caps accepted input sizes.
func WithMaxInputSize(n int64) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxInput = n
		}
	}
}

// NewService creates a new Service.
func NewService(session Session, repo Repository, results *result.Materializer, opts ...ServiceOption) *Service {
	s := &Service{
		session:  session,
		repo:     repo,
		results:  results,
		guard:    NewGuard(),
		broker:   NewBroker(),
		metrics:  noopMetrics{},
		logger:   slog.Default(),
		clock:    progress.RealClock{},
		interval: progress.DefaultInterval,
		maxInput: tools.MaxInputSize,
		running:  make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runner = NewRunner(session, WithRunnerLogger(s.logger))
	return s
}

// Submit validates req, claims the engine and starts the job in the
// background. It returns a snapshot of the PENDING job.
//
// Errors: tools.ErrUnsupportedInput (or another tools validation error)
// before anything touches the engine, an *Error of KindInitialization when
// the engine cannot load, ErrJobAlreadyRunning while another job runs.
func (s *Service) Submit(ctx context.Context, req Request) (*Job, error) {
	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	if err := s.session.Initialize(ctx); err != nil {
		return nil, &Error{Kind: KindInitialization, Err: err}
	}

	job := New(req.Tool)
	if err := s.guard.Acquire(job.ID); err != nil {
		return nil, err
	}

	job.Format = p.format
	job.Quality = p.quality
	job.InputName = req.InputName
	job.InputSize = int64(len(req.Input))
	job.Segments = p.segments

	s.broker.Open(job.ID)
	if err := s.repo.Save(ctx, job); err != nil {
		s.broker.Discard(job.ID)
		s.guard.Release(job.ID)
		return nil, fmt.Errorf("save job: %w", err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.running[job.ID] = done
	s.mu.Unlock()

	s.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("tool", string(job.Tool)),
		slog.String("input", job.InputName),
		slog.Int64("size", job.InputSize),
	)

	snapshot := job.Clone()
	go s.execute(context.WithoutCancel(ctx), job, p, req.Input, done)
	return snapshot, nil
}

func (s *Service) prepare(req Request) (plan, error) {
	def, err := tools.Lookup(req.Tool)
	if err != nil {
		return plan{}, err
	}
	if err := def.ValidateInput(req.InputName, req.MimeType, int64(len(req.Input)), s.maxInput); err != nil {
		return plan{}, err
	}
	ext, err := tools.InputExt(req.InputName)
	if err != nil {
		return plan{}, err
	}
	p := plan{def: def, ext: ext}

	if def.Segmented {
		segs, err := tools.NormalizeSegments(req.Segments)
		if err != nil {
			return plan{}, err
		}
		p.segments = segs
		for _, seg := range segs {
			args, err := def.SegmentFragment(seg)
			if err != nil {
				return plan{}, err
			}
			p.specs = append(p.specs, SegmentSpec{
				Name:       seg.Name,
				Args:       args,
				OutputName: def.SegmentOutputName(seg),
			})
		}
		return p, nil
	}

	sel, err := tools.NewSelection(req.Tool)
	if err != nil {
		return plan{}, err
	}
	if req.Format != "" {
		if err := sel.SetFormat(req.Format); err != nil {
			return plan{}, err
		}
	}
	if req.Quality != "" {
		if err := sel.SetQuality(req.Quality); err != nil {
			return plan{}, err
		}
	}
	if p.args, err = sel.Args(); err != nil {
		return plan{}, err
	}
	p.format = sel.Format()
	p.quality = sel.Quality()
	p.output = sel.OutputName()
	return p, nil
}

func (s *Service) execute(ctx context.Context, job *Job, p plan, input []byte, done chan struct{}) {
	logger := s.logger.With(
		slog.String("job_id", job.ID),
		slog.String("tool", string(job.Tool)),
	)
	defer func() {
		s.guard.Release(job.ID)
		s.mu.Lock()
		delete(s.running, job.ID)
		s.mu.Unlock()
		close(done)
	}()

	s.session.ClearLogs()
	_ = job.Start()
	start := fmt.Sprintf("Starting %s...", strings.ToLower(p.def.Title))
	job.SetProgress(start)
	s.save(ctx, job, logger)
	s.broker.Publish(Event{JobID: job.ID, Phase: PhaseStarted, Message: start, Time: time.Now()})

	observer := progress.NewObserver(s.session,
		progress.WithClock(s.clock),
		progress.WithInterval(s.interval),
	)
	observer.Start(func(line string) {
		job.SetProgress(line)
		s.save(ctx, job, logger)
		s.broker.Publish(Event{JobID: job.ID, Phase: PhaseProgress, Message: line, Time: time.Now()})
	})

	handles, err := s.run(ctx, job, p, input)
	observer.Stop()

	if err != nil {
		kind := Classify(err)
		msg := DisplayMessage(err)
		_ = job.Fail(kind, msg)
		s.save(ctx, job, logger)
		s.broker.Publish(Event{JobID: job.ID, Phase: PhaseFailed, Error: msg, Kind: kind, Time: time.Now()})
		s.metrics.JobFinished(string(job.Tool), string(StatusFailed), job.Duration())
		logger.Error("job failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return
	}

	_ = job.Succeed(handles)
	job.SetProgress("Completed")
	s.save(ctx, job, logger)
	s.broker.Publish(Event{JobID: job.ID, Phase: PhaseSucceeded, Message: "Completed", Time: time.Now()})
	s.metrics.JobFinished(string(job.Tool), string(StatusSucceeded), job.Duration())
	logger.Info("job succeeded",
		slog.Int("results", len(handles)),
		slog.Duration("duration", job.Duration()),
	)
}

func (s *Service) run(ctx context.Context, job *Job, p plan, input []byte) ([]result.Handle, error) {
	tool := string(p.def.Tool)

	if p.def.Segmented {
		if err := s.results.ReleaseSlots(ctx, tool+"/"); err != nil {
			s.logger.Warn("failed to release previous segments", slog.String("error", err.Error()))
		}
		var handles []result.Handle
		deliver := func(ctx context.Context, seg SegmentSpec, data []byte) error {
			h, err := s.results.Publish(ctx, tool+"/"+seg.Name, seg.OutputName, data, p.def.SegmentMime)
			if err != nil {
				return err
			}
			handles = append(handles, h)
			job.AddResult(h)
			s.save(ctx, job, s.logger)
			s.broker.Publish(Event{
				JobID:   job.ID,
				Phase:   PhaseSegment,
				Message: fmt.Sprintf("Segment %d of %d ready: %s", len(handles), len(p.specs), seg.OutputName),
				Result:  &h,
				Time:    time.Now(),
			})
			return nil
		}
		if err := s.runner.runSegments(ctx, input, p.ext, p.specs, deliver, job.AddCommand); err != nil {
			return nil, err
		}
		return handles, nil
	}

	data, err := s.runner.run(ctx, Spec{
		InputBytes: input,
		InputExt:   p.ext,
		Args:       p.args,
		OutputName: p.output,
	}, job.AddCommand)
	if err != nil {
		return nil, err
	}

	h, err := s.results.Publish(ctx, tool, downloadName(job.InputName, p.format), data, p.def.MimeType(p.format))
	if err != nil {
		return nil, &Error{Kind: KindIO, Err: err}
	}
	return []result.Handle{h}, nil
}

// downloadName names a converted file after its input: clip.mov -> clip.mp3.
func downloadName(inputName, format string) string {
	base := strings.TrimSuffix(filepath.Base(inputName), filepath.Ext(inputName))
	if base == "" || base == "." {
		base = "output"
	}
	return base + "." + format
}

func (s *Service) save(ctx context.Context, job *Job, logger *slog.Logger) {
	if err := s.repo.Save(ctx, job); err != nil {
		logger.Error("failed to save job", slog.String("error", err.Error()))
	}
}

// Wait blocks until the job is terminal and returns its final snapshot.
func (s *Service) Wait(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	done, ok := s.running[id]
	s.mu.Unlock()

	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.repo.FindByID(ctx, id)
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns every job, oldest first.
func (s *Service) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// DeleteJob forgets a finished job and releases the results it still
// references. Results already replaced by a later job are left alone.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !current.IsTerminal() {
		return ErrJobNotFinished
	}
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	var errs []error
	for _, h := range removed.Results {
		if err := s.results.Release(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info("job deleted",
		slog.String("job_id", id),
		slog.Int("results", len(removed.Results)),
	)
	return errors.Join(errs...)
}

// Subscribe returns the job's event stream. The channel is closed after the
// terminal event, or immediately if the job already finished.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan Event, func(), error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := s.broker.Subscribe(id)
	return ch, unsubscribe, nil
}

// IsBusy reports whether a job currently holds the engine.
func (s *Service) IsBusy() bool {
	return s.guard.IsRunning()
}
