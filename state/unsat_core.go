package state

import (
	"container/heap"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
)

// ExtractUnsatCoreAfterConflict resolves a conflict found while only
// assumptions were on the trail back to the assumptions that caused it.
func (d *Domains) ExtractUnsatCoreAfterConflict(conflict Conflict, ex Explainer) UnsatCore {
	expl := &Explanation{}
	for _, l := range conflict.Clause.Lits() {
		expl.Push(l.Not())
	}
	return d.extractUnsatCore(expl, ex)
}

// ExtractUnsatCoreAfterInvalidUpdate resolves a failed update that occurred
// while only assumptions were on the trail back to the responsible
// assumptions.
func (d *Domains) ExtractUnsatCoreAfterInvalidUpdate(failed *InvalidUpdate, ex Explainer) UnsatCore {
	expl := &Explanation{}
	expl.Push(failed.Literal.Not())
	if failed.Cause.Kind == KindAssumption {
		// the failing update stems directly from an assumption
		assumed := failed.Literal
		if failed.Cause.FromEmptyDomain {
			assumed = failed.Cause.EmptiedLit
			expl.Push(assumed.Not())
		}
		c := d.extractUnsatCore(expl, ex)
		for _, l := range c.Lits {
			if l == assumed {
				return c
			}
		}
		c.Lits = append(c.Lits, assumed)
		return c
	}
	d.addImplyingLiterals(failed.Literal, failed.Cause, expl, ex)
	return d.extractUnsatCore(expl, ex)
}

// extractUnsatCore resolves all literals of the explanation back in time,
// collecting the assumptions they stem from. Events are undone along the
// way; the caller is expected to backtrack afterwards.
func (d *Domains) extractUnsatCore(expl *Explanation, ex Explainer) UnsatCore {
	found := mapset.NewThreadUnsafeSet[core.Lit]()
	queue := analysisQueue{}
	heap.Init(&queue)

	trail := d.doms.Trail()
	for {
		for _, l := range expl.Lits {
			if !d.Entails(l) {
				continue
			}
			loc := d.doms.ImplyingEvent(l)
			if loc == backtrack.NoEvent {
				continue
			}
			if trail.DecisionLevel(loc) == backtrack.Root {
				continue
			}
			heap.Push(&queue, inQueueLit{loc: loc, lit: l})
		}
		expl.Lits = expl.Lits[:0]

		if queue.Len() == 0 {
			return UnsatCore{Lits: found.ToSlice()}
		}
		l := heap.Pop(&queue).(inQueueLit)
		for queue.Len() > 0 && queue[0].loc == l.loc {
			other := heap.Pop(&queue).(inQueueLit)
			if other.lit.Bound().StrictlyStronger(l.lit.Bound()) {
				l.lit = other.lit
			}
		}
		var origin Origin
		for trail.Len() > int(l.loc) {
			e, ok := d.doms.UndoLastEvent()
			if !ok {
				panic("unsat core extraction reached below the current level")
			}
			origin = e.Cause
		}
		switch {
		case origin.FromEmptyDomain && origin.Kind == KindAssumption:
			// the absence was inferred from an assumed update
			found.Add(origin.EmptiedLit)
			expl.Push(origin.EmptiedLit.Not())
		case origin.Kind == KindAssumption:
			found.Add(l.lit)
		case origin.Kind == KindDecision:
			panic("decision event while extracting an unsat core")
		default:
			d.addImplyingLiterals(l.lit, origin, expl, ex)
		}
	}
}
