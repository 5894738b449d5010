package job

import "sync"

// Guard admits one job at a time. It sits in front of the engine so a second
// submission is refused before it can stage anything.
type Guard struct {
	mu      sync.Mutex
	current string
}

// NewGuard creates an idle Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Acquire claims the guard for jobID.
// Returns ErrJobAlreadyRunning if another job holds it.
func (g *Guard) Acquire(jobID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != "" {
		return ErrJobAlreadyRunning
	}
	g.current = jobID
	return nil
}

// Release frees the guard if jobID holds it.
func (g *Guard) Release(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == jobID {
		g.current = ""
	}
}

// Current returns the ID of the job holding the guard.
func (g *Guard) Current() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current, g.current != ""
}

// IsRunning reports whether a job holds the guard.
func (g *Guard) IsRunning() bool {
	_, ok := g.Current()
	return ok
}
