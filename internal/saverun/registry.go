package saverun

import (
	"runonsave/pkg/runner"
	"sort"
	"sync"
	"time"
)

// Run is one spawned command for one document
type Run struct {
	ID         string
	Key        string
	Command    string
	Generation uint64
	StartedAt  time.Time

	proc runner.Process
}

// PID of the underlying process, 0 if it never started
func (r *Run) PID() int {
	if r.proc == nil {
		return 0
	}
	return r.proc.PID()
}

// Kill asks the underlying process to terminate
func (r *Run) Kill() error {
	if r.proc == nil {
		return nil
	}
	return r.proc.Kill()
}

// RunInfo is a point-in-time view of a registered run
type RunInfo struct {
	Key        string    `json:"key"`
	RunID      string    `json:"run_id"`
	PID        int       `json:"pid"`
	Command    string    `json:"command"`
	Generation uint64    `json:"generation"`
	StartedAt  time.Time `json:"started_at"`
}

// Registry maps a document key to its most recently started run. An entry
// is the run that was started last, not necessarily one that is still alive.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
	// gens only grows, so a stale run can never match a reused generation
	gens map[string]uint64
}

func NewRegistry() *Registry {
	return &Registry{
		runs: make(map[string]*Run),
		gens: make(map[string]uint64),
	}
}

// NextGeneration advances and returns the generation for key. Output from a
// run whose generation is behind is stale.
func (r *Registry) NextGeneration(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[key]++
	return r.gens[key]
}

// Generation returns the latest generation handed out for key
func (r *Registry) Generation(key string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gens[key]
}

// Get returns the current run for key
func (r *Registry) Get(key string) (*Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[key]
	return run, ok
}

// Supersede registers run under key, overwriting any previous entry, and
// returns the entry it replaced.
func (r *Registry) Supersede(key string, run *Run) *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.runs[key]
	r.runs[key] = run
	return prev
}

// RemoveIfCurrent deletes the entry for key only if it is this exact run
func (r *Registry) RemoveIfCurrent(key string, run *Run) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.runs[key]; ok && cur == run {
		delete(r.runs, key)
		return true
	}
	return false
}

// IsCurrent reports whether run is the entry for key
func (r *Registry) IsCurrent(key string, run *Run) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runs[key] == run
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// Snapshot lists the registered runs ordered by key
func (r *Registry) Snapshot() []RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RunInfo, 0, len(r.runs))
	for key, run := range r.runs {
		out = append(out, RunInfo{
			Key:        key,
			RunID:      run.ID,
			PID:        run.PID(),
			Command:    run.Command,
			Generation: run.Generation,
			StartedAt:  run.StartedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Drain removes and returns every registered run
func (r *Registry) Drain() []*Run {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Run, 0, len(r.runs))
	for key, run := range r.runs {
		out = append(out, run)
		delete(r.runs, key)
	}
	return out
}
