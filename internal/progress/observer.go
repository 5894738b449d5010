// Package progress turns the engine's log tail into progress updates.
package progress

import (
	"strings"
	"sync"
	"time"
)

// DefaultInterval is how often the observer samples the log tail.
const DefaultInterval = 500 * time.Millisecond

// LogSource exposes the most recent engine log line.
type LogSource interface {
	LatestLog() string
}

// State is the observer lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
)

// Observer samples a LogSource on a fixed interval and reports each new
// non-empty line.
type Observer struct {
	source   LogSource
	clock    Clock
	interval time.Duration

	mu       sync.Mutex
	last     string
	onUpdate func(string)
	stop     chan struct{}
	done     chan struct{}
}

// Option configures an Observer.
type Option func(*Observer)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *Observer) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) Option {
	return func(o *Observer) {
		if d > 0 {
			o.interval = d
		}
	}
}

// NewObserver creates an idle Observer over source.
func NewObserver(source LogSource, opts ...Option) *Observer {
	o := &Observer{
		source:   source,
		clock:    RealClock{},
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start begins polling and calls onUpdate from the polling goroutine for
// every line that differs from the last one reported. Starting a polling
// observer restarts it. onUpdate must not call Stop.
func (o *Observer) Start(onUpdate func(line string)) {
	o.Stop()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = ""
	o.onUpdate = onUpdate
	o.stop = make(chan struct{})
	o.done = make(chan struct{})

	ticker := o.clock.NewTicker(o.interval)
	go o.loop(ticker, o.stop, o.done)
}

// Stop ends polling and waits for the polling goroutine to exit. It is a
// no-op on an idle observer.
func (o *Observer) Stop() {
	o.mu.Lock()
	stop, done := o.stop, o.done
	o.stop, o.done = nil, nil
	o.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// State reports whether the observer is polling.
func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stop != nil {
		return StatePolling
	}
	return StateIdle
}

// Poll samples the source once and reports the line if it is new.
func (o *Observer) Poll() {
	line := strings.TrimSpace(o.source.LatestLog())

	o.mu.Lock()
	if line == "" || line == o.last {
		o.mu.Unlock()
		return
	}
	o.last = line
	fn := o.onUpdate
	o.mu.Unlock()

	if fn != nil {
		fn(line)
	}
}

func (o *Observer) loop(ticker Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			o.Poll()
		}
	}
}
