package state

import (
	"container/heap"
	"fmt"

	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
)

// Explanation is a set of literals that, together, imply some other literal.
type Explanation struct {
	Lits []core.Lit
}

// Push adds a literal to the explanation.
func (e *Explanation) Push(l core.Lit) { e.Lits = append(e.Lits, l) }

// InvalidUpdate is the failure to apply an update on a variable that cannot
// be absent. It is a control-flow value, not an error: the search recovers
// from it by learning a clause and backtracking.
type InvalidUpdate struct {
	Literal core.Lit
	Cause   Origin
}

func (i *InvalidUpdate) String() string {
	return fmt.Sprintf("invalid update: %s", i.Literal)
}

// Conflict is the result of conflict analysis: a clause violated in the
// current state, asserting after backtracking, together with the literals
// resolved during analysis (used by activity heuristics).
type Conflict struct {
	Clause   core.Disjunction
	Resolved *core.LitSet
}

// Literals returns the literals of the conflict clause.
func (c *Conflict) Literals() []core.Lit { return c.Clause.Lits() }

// Contradiction is what a reasoner reports on failure: either a failed
// domain update or an explanation of the impossibility.
type Contradiction struct {
	Invalid *InvalidUpdate
	Expl    *Explanation
}

// NewContradictionFrom wraps a failed update.
func NewContradictionFrom(inv *InvalidUpdate) *Contradiction {
	return &Contradiction{Invalid: inv}
}

// NewContradiction wraps an explanation of a failure: the literals of expl
// are jointly inconsistent with the current state.
func NewContradiction(expl *Explanation) *Contradiction {
	return &Contradiction{Expl: expl}
}

// Explainer produces the literals that implied an inference previously made
// by a reasoner.
type Explainer interface {
	// Explain appends to out the literals that implied the inference of
	// lit, identified by cause. The domain store is in a state where the
	// event of lit has just been undone.
	Explain(cause InferenceCause, lit core.Lit, dom *Domains, out *Explanation)
}

// UnsatCore is a subset of the assumptions that is sufficient to make the
// problem unsatisfiable.
type UnsatCore struct {
	Lits []core.Lit
}

// queued literal waiting to be resolved during conflict analysis,
// with the event that made it true
type inQueueLit struct {
	loc backtrack.EventIndex
	lit core.Lit
}

// max-heap on event indices: latest event first
type analysisQueue []inQueueLit

func (q analysisQueue) Len() int            { return len(q) }
func (q analysisQueue) Less(i, j int) bool  { return q[i].loc > q[j].loc }
func (q analysisQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *analysisQueue) Push(x interface{}) { *q = append(*q, x.(inQueueLit)) }
func (q *analysisQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// addImplyingLiterals appends to expl the literals that implied the event
// that set lit, based on the recorded origin.
func (d *Domains) addImplyingLiterals(lit core.Lit, origin Origin, expl *Explanation, ex Explainer) {
	target := lit
	if origin.FromEmptyDomain {
		// lit is the absence of a variable, inferred because the update
		// origin.EmptiedLit would have emptied its domain: the negation of
		// that update holds and is part of the implying literals
		expl.Push(origin.EmptiedLit.Not())
		target = origin.EmptiedLit
	}
	switch origin.Kind {
	case KindDecision, KindAssumption, KindEncoding:
		// nothing to resolve further
	case KindInference:
		ex.Explain(origin.Inference, target, d, expl)
	case KindImplication:
		expl.Push(origin.Implier)
	}
}

// ImplyingLiterals appends to out the literals that implied the entailed
// literal lit, and reports whether such a reason exists. Decisions and
// assumptions have no reason; neither do literals of the initial state.
func (d *Domains) ImplyingLiterals(lit core.Lit, ex Explainer, out *Explanation) bool {
	loc := d.doms.ImplyingEvent(lit)
	if loc == backtrack.NoEvent {
		return true // initially true, implied by nothing
	}
	origin := d.doms.Event(loc).Cause
	switch origin.Kind {
	case KindDecision, KindAssumption:
		return false
	}
	d.addImplyingLiterals(lit, origin, out, ex)
	return true
}

// ClauseForInvalidUpdate builds a conflict clause from a failed update.
// The negation of the failed literal holds in the current state; the
// conflict is refined to the first unique implication point.
func (d *Domains) ClauseForInvalidUpdate(failed *InvalidUpdate, ex Explainer) Conflict {
	expl := &Explanation{}
	expl.Push(failed.Literal.Not())
	d.addImplyingLiterals(failed.Literal, failed.Cause, expl, ex)
	return d.RefineExplanation(expl, ex)
}

// RefineExplanation turns a set of literals that imply a contradiction into
// an asserting conflict clause, by resolving the literals of the current
// decision level until a single one remains (first unique implication
// point). Events of the current level are undone along the way; the caller
// is expected to backtrack afterwards.
func (d *Domains) RefineExplanation(expl *Explanation, ex Explainer) Conflict {
	var result []core.Lit
	resolved := core.NewLitSet()
	queue := analysisQueue{}
	heap.Init(&queue)

	trail := d.doms.Trail()
	for {
		for _, l := range expl.Lits {
			if !d.Entails(l) {
				// the literal may have been inferred on a variable whose
				// absence was established later, skip it
				continue
			}
			loc := d.doms.ImplyingEvent(l)
			if loc == backtrack.NoEvent {
				continue // initially true, no need to keep it
			}
			switch trail.Class(loc) {
			case backtrack.ClassRoot:
				// root facts do not contribute to the clause
			case backtrack.ClassCurrent:
				heap.Push(&queue, inQueueLit{loc: loc, lit: l})
			case backtrack.ClassIntermediate:
				result = append(result, l.Not())
			}
		}
		expl.Lits = expl.Lits[:0]

		if queue.Len() == 0 {
			// everything resolved to root facts: the conflict holds
			// regardless of the current level
			return Conflict{Clause: core.NewDisjunction(result), Resolved: resolved}
		}
		l := heap.Pop(&queue).(inQueueLit)
		// merge entries made true by the same event, keeping the strongest
		for queue.Len() > 0 && queue[0].loc == l.loc {
			other := heap.Pop(&queue).(inQueueLit)
			if other.lit.Bound().StrictlyStronger(l.lit.Bound()) {
				l.lit = other.lit
			}
		}
		if queue.Len() == 0 {
			// single literal of the current level left: the UIP
			result = append(result, l.lit.Not())
			return Conflict{Clause: core.NewDisjunction(result), Resolved: resolved}
		}
		// rewind the trail just before the event that made l true,
		// keeping the origin of that event
		var origin Origin
		for trail.Len() > int(l.loc) {
			e, ok := d.doms.UndoLastEvent()
			if !ok {
				panic("conflict analysis reached below the current level")
			}
			origin = e.Cause
		}
		resolved.Insert(l.lit)
		d.addImplyingLiterals(l.lit, origin, expl, ex)
	}
}
