package batch

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// Job is an extraction that has claimed an output base.
type Job struct {
	Input      string
	OutputBase string
	StartedAt  time.Time
}

// Registry tracks which output bases are claimed, so that two inputs never
// write the same files.
type Registry struct {
	log  *slog.Logger
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry creates an empty registry. If log is nil, slog.Default() is
// used.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:  log.With("component", "batch-registry"),
		jobs: make(map[string]*Job),
	}
}

// Create claims outputBase for input. It returns the job and true, or nil
// and false if the base is already claimed.
func (r *Registry) Create(input, outputBase string) (*Job, bool) {
	key := filepath.Clean(outputBase)

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.jobs[key]; ok {
		r.log.Warn("output base already claimed, rejecting duplicate",
			"input", input, "claimed_by", prev.Input, "output_base", key)
		return nil, false
	}

	j := &Job{
		Input:      input,
		OutputBase: key,
		StartedAt:  time.Now(),
	}
	r.jobs[key] = j
	r.log.Debug("output base claimed", "input", input, "output_base", key)
	return j, true
}

// Remove releases outputBase.
func (r *Registry) Remove(outputBase string) {
	key := filepath.Clean(outputBase)

	r.mu.Lock()
	_, ok := r.jobs[key]
	delete(r.jobs, key)
	r.mu.Unlock()

	if ok {
		r.log.Debug("output base released", "output_base", key)
	}
}

// List returns the claimed jobs in no particular order.
func (r *Registry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	return jobs
}
