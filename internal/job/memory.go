package job

import (
	"context"
	"slices"
	"sync"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps job history for the life of the process. Jobs are
// listed in the order they were first saved.
type MemoryRepository struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs: make(map[string]*Job),
	}
}

func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snapshot := job.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		r.order = append(r.order, job.ID)
	}
	r.jobs[job.ID] = snapshot
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.jobs[id].Clone())
	}
	return out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	delete(r.jobs, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return job, nil
}
