package job

import (
	"sync"
	"time"

	"github.com/maauso/mediatools-api/internal/result"
)

// Phase names the kind of a progress event.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseProgress  Phase = "progress"
	PhaseSegment   Phase = "segment"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// IsTerminal reports whether no events follow p.
func (p Phase) IsTerminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Event is one progress notification for a job. Failure text travels in
// Error, never in Message. Segment events carry the published handle.
type Event struct {
	JobID   string         `json:"job_id"`
	Phase   Phase          `json:"phase"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Kind    Kind           `json:"kind,omitempty"`
	Result  *result.Handle `json:"result,omitempty"`
	Time    time.Time      `json:"time"`
}

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Broker fans job events out to subscribers. It is safe for concurrent use.
//
// A topic lives from Open until its terminal event. Subscribing to a topic
// that is not open yields a closed channel, so late subscribers never block.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]chan Event
	nextID int
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topic),
	}
}

// Open starts accepting events for jobID. Opening an open topic is a no-op.
func (b *Broker) Open(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[jobID]; !ok {
		b.topics[jobID] = &topic{subs: make(map[int]chan Event)}
	}
}

// Subscribe returns a channel of events for jobID and an unsubscribe func.
// If the topic is not open, the channel is closed immediately.
func (b *Broker) Subscribe(jobID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBufferSize)
	t, ok := b.topics[jobID]
	if !ok {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends ev to every subscriber of ev.JobID. Events for topics that
// are not open are dropped. A terminal event closes every subscriber and
// removes the topic. Events are dropped for subscribers whose buffers are
// full, except terminal ones, which replace the oldest buffered event.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.JobID]
	if !ok {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if ev.Phase.IsTerminal() {
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}

	if ev.Phase.IsTerminal() {
		b.closeLocked(ev.JobID, t)
	}
}

// Discard closes jobID's topic without an event.
func (b *Broker) Discard(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[jobID]; ok {
		b.closeLocked(jobID, t)
	}
}

func (b *Broker) closeLocked(jobID string, t *topic) {
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	delete(b.topics, jobID)
}
