package api

import (
	"cmp"
	"slices"
	"sync"

	"github.com/JasonLKelly/cosense-cloud/sim"
	"github.com/JasonLKelly/cosense-cloud/sim/coord"
)

// maxRecentDecisions bounds the decision history served over HTTP.
const maxRecentDecisions = 100

// Recent keeps the latest coordination output for the read endpoints.
type Recent struct {
	mu        sync.RWMutex
	tick      int64
	states    map[sim.RobotID]coord.State
	decisions []coord.Decision // oldest first
}

// NewRecent returns an empty buffer.
func NewRecent() *Recent {
	return &Recent{states: make(map[sim.RobotID]coord.State)}
}

// Add folds one tick of output into the buffer.
func (r *Recent) Add(out coord.Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if out.Tick < r.tick {
		clear(r.states)
	}
	r.tick = out.Tick
	for _, s := range out.States {
		r.states[s.RobotID] = s
	}
	r.decisions = append(r.decisions, out.Decisions...)
	if over := len(r.decisions) - maxRecentDecisions; over > 0 {
		r.decisions = slices.Delete(r.decisions, 0, over)
	}
}

// States returns the latest state of every robot, ordered by id.
func (r *Recent) States() (int64, []coord.State) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]coord.State, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b coord.State) int { return cmp.Compare(a.RobotID, b.RobotID) })
	return r.tick, out
}

// Decisions returns up to limit of the most recent decisions, oldest first,
// optionally restricted to one robot.
func (r *Recent) Decisions(robot sim.RobotID, limit int) []coord.Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []coord.Decision
	for i := len(r.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		if robot == "" || r.decisions[i].RobotID == robot {
			out = append(out, r.decisions[i])
		}
	}
	slices.Reverse(out)
	if out == nil {
		out = []coord.Decision{}
	}
	return out
}
