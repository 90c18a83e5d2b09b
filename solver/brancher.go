package solver

import (
	"container/heap"

	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/state"
)

const (
	activityDecay   = 0.95
	activityRescale = 1e100
)

// Decision is what the brancher yields: either a literal to set or a
// restart of the search.
type Decision struct {
	Lit     core.Lit
	Restart bool
}

// Brancher implements activity-based branching: variables appearing in
// conflicts get their activity bumped, all activities decay after each
// conflict, and the next decision bounds the unassigned variable of
// highest activity to its preferred value. It also owns the geometric
// restart schedule.
type Brancher struct {
	activities []float64
	increment  float64
	queue      varHeap

	preferMin bool

	allowedConflicts       uint64
	increaseRatio          float64
	conflictsAtLastRestart uint64
}

// NewBrancher creates a brancher following the configuration.
func NewBrancher(conf Conf) *Brancher {
	b := &Brancher{
		increment:        1.0,
		preferMin:        conf.PreferMinValue,
		allowedConflicts: conf.InitiallyAllowedConflicts,
		increaseRatio:    conf.IncreaseRatioForAllowedConflicts,
	}
	b.queue.b = b
	return b
}

// ImportVars makes the brancher aware of all variables of the store and
// re-enqueues any unassigned variable that left the queue. Called after
// every backtrack.
func (b *Brancher) ImportVars(doms *state.Domains) {
	n := doms.NumVars()
	for len(b.activities) < n {
		b.activities = append(b.activities, 0)
		b.queue.pos = append(b.queue.pos, -1)
	}
	for i := 1; i < n; i++ {
		v := core.VarRef(i)
		if b.queue.pos[v] < 0 && b.decidable(v, doms) {
			heap.Push(&b.queue, v)
		}
	}
}

// decidable returns whether a decision can be taken on the variable: it
// must not be bound already nor known absent.
func (b *Brancher) decidable(v core.VarRef, doms *state.Domains) bool {
	if doms.IsBound(v) {
		return false
	}
	present, known := doms.Present(v)
	return !known || present
}

// NextDecision returns the next decision, or ok=false when every variable
// is assigned or absent and the current state is a solution.
func (b *Brancher) NextDecision(stats *Stats, doms *state.Domains) (Decision, bool) {
	if stats.Conflicts-b.conflictsAtLastRestart >= b.allowedConflicts {
		b.conflictsAtLastRestart = stats.Conflicts
		b.allowedConflicts = uint64(float64(b.allowedConflicts) * b.increaseRatio)
		return Decision{Restart: true}, true
	}
	for b.queue.Len() > 0 {
		v := heap.Pop(&b.queue).(core.VarRef)
		if !b.decidable(v, doms) {
			continue
		}
		lb, ub := doms.Bounds(v)
		if b.preferMin {
			return Decision{Lit: core.Leq(v, lb)}, true
		}
		return Decision{Lit: core.Geq(v, ub)}, true
	}
	return Decision{}, false
}

// NotifyConflict bumps the activity of the variables involved in the
// conflict and decays all activities.
func (b *Brancher) NotifyConflict(conflict *state.Conflict, doms *state.Domains) {
	for _, l := range conflict.Literals() {
		b.Bump(l.Variable(), doms)
	}
	for _, l := range conflict.Resolved.Lits() {
		b.Bump(l.Variable(), doms)
	}
	b.increment /= activityDecay
}

// Bump increases the activity of the variable.
func (b *Brancher) Bump(v core.VarRef, doms *state.Domains) {
	b.ImportVars(doms)
	b.activities[v] += b.increment
	if b.activities[v] > activityRescale {
		for i := range b.activities {
			b.activities[i] /= activityRescale
		}
		b.increment /= activityRescale
	}
	if i := b.queue.pos[v]; i >= 0 {
		heap.Fix(&b.queue, i)
	}
}

// Clone returns an independent copy of the brancher.
func (b *Brancher) Clone() *Brancher {
	out := *b
	out.activities = append([]float64(nil), b.activities...)
	out.queue = varHeap{
		b:    &out,
		vars: append([]core.VarRef(nil), b.queue.vars...),
		pos:  append([]int(nil), b.queue.pos...),
	}
	return &out
}

// max-heap on activity; pos tracks the position of each variable in the
// heap, -1 when popped.
type varHeap struct {
	b    *Brancher
	vars []core.VarRef
	pos  []int
}

func (h *varHeap) Len() int { return len(h.vars) }
func (h *varHeap) Less(i, j int) bool {
	return h.b.activities[h.vars[i]] > h.b.activities[h.vars[j]]
}
func (h *varHeap) Swap(i, j int) {
	h.vars[i], h.vars[j] = h.vars[j], h.vars[i]
	h.pos[h.vars[i]] = i
	h.pos[h.vars[j]] = j
}
func (h *varHeap) Push(x interface{}) {
	v := x.(core.VarRef)
	h.pos[v] = len(h.vars)
	h.vars = append(h.vars, v)
}
func (h *varHeap) Pop() interface{} {
	n := len(h.vars)
	v := h.vars[n-1]
	h.vars = h.vars[:n-1]
	h.pos[v] = -1
	return v
}
