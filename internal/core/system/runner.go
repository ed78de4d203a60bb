package system

import (
	"sort"
	"time"
)

// Runner executes systems in phase order each tick.
type Runner struct {
	systems []System
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Deregister removes a previously registered system. A witness detaching
// mid-run uses this so the scheduler stops calling an update() that would
// otherwise observe a torn-down viewer (spec §4.1's detach contract).
func (r *Runner) Deregister(s System) {
	for i, existing := range r.systems {
		if existing == s {
			r.systems = append(r.systems[:i], r.systems[i+1:]...)
			return
		}
	}
}

func (r *Runner) Tick(dt time.Duration) {
	if !r.sorted {
		sort.Slice(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
	for _, s := range r.systems {
		s.Update(dt)
	}
}
