package cachecore

// profiler.go implements the cost-accounting state machine: every query
// participates in a profiler that is either Running (own work counts
// toward self_* counters) or Stopped (a sub-operation is running). Scoped
// guards ensure the state transitions on every exit path, including panics
// propagated through recompute calls.

import "sync"

// ProfilerState is the profiler's two-state machine.
type ProfilerState uint8

const (
	Running ProfilerState = iota
	Stopped
)

// Profiler accumulates cost for one query's lifetime: self-incurred cost,
// merged child cost (addTotalCosts) and a separate "cached" bucket that
// re-attributes a successful cache write's cost so callers can distinguish
// "this would have cost X but we saved it" from "this cost X and we paid
// it".
type Profiler struct {
	mu     sync.Mutex
	state  ProfilerState
	self   Profile
	total  Profile
	cached Profile
}

// NewProfiler starts a profiler in the Running state.
func NewProfiler() *Profiler {
	return &Profiler{state: Running}
}

// State returns the current state.
func (p *Profiler) State() ProfilerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Self returns the cost attributed directly to this query's own work (not a
// sub-operation's).
func (p *Profiler) Self() Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.self
}

// Total returns self cost plus every merged child cost.
func (p *Profiler) Total() Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.total
	t.Add(p.self)
	return t
}

// Cached returns the accumulated "saved by cache" bucket.
func (p *Profiler) Cached() Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cached
}

// AddSelf merges delta into this query's own cost, only meaningful while
// Running.
func (p *Profiler) AddSelf(delta Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.self.Add(delta)
}

// AddTotalCosts merges a child profiler's totals into the parent's
// accumulated totals.
func (p *Profiler) AddTotalCosts(child Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total.Add(child)
}

// AddCached re-attributes a successful cache write's cost to the cached
// bucket.
func (p *Profiler) AddCached(delta Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached.Add(delta)
}

// Scope transitions the profiler to Stopped for the duration of fn (a
// sub-operation is about to run) and guarantees the prior state is restored
// on every exit path, including a panic inside fn.
func (p *Profiler) Scope(fn func()) {
	p.mu.Lock()
	prev := p.state
	p.state = Stopped
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.state = prev
		p.mu.Unlock()
	}()

	fn()
}
