package solver

import (
	"fmt"

	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/sat"
	"github.com/plaans/aries-sub004/state"
	"github.com/plaans/aries-sub004/stn"
)

// Theory is a propagator plugged into the search. Beyond propagation it
// must explain its past inferences and backtrack in lockstep with the
// domain store.
type Theory interface {
	state.Explainer

	Identity() state.ReasonerId
	// Propagate processes the trail events and bindings received since the
	// last call, up to its local fixed point.
	Propagate(doms *state.Domains) *state.Contradiction

	SaveState() backtrack.DecLvl
	NumSaved() int
	RestoreLast()
}

// reasoners groups the propagators of a solver in their propagation
// order: clauses first, then the difference-logic network, then the
// tautology re-imposer.
type reasoners struct {
	sat         *sat.Reasoner
	diff        *stn.Reasoner
	tautologies *tautologies
}

func (r *reasoners) all() []Theory {
	return []Theory{r.sat, r.diff, r.tautologies}
}

func (r *reasoners) writer(id state.ReasonerId) Theory {
	switch id {
	case state.ReasonerSat:
		return r.sat
	case state.ReasonerDiff:
		return r.diff
	case state.ReasonerTautologies:
		return r.tautologies
	default:
		panic(fmt.Sprintf("no reasoner with id %d", id))
	}
}

// Explain dispatches the explanation request to the reasoner that made
// the inference.
func (r *reasoners) Explain(cause state.InferenceCause, lit core.Lit, doms *state.Domains, out *state.Explanation) {
	r.writer(cause.Writer).Explain(cause, lit, doms, out)
}

func (r *reasoners) clone() *reasoners {
	return &reasoners{
		sat:         r.sat.Clone(),
		diff:        r.diff.Clone(),
		tautologies: r.tautologies.clone(),
	}
}

// tautologies records literals that hold in every state reachable from
// the root, typically unit learnt clauses. Setting a literal at the root
// is undone by a backtrack past the root savepoint (restarts under
// assumptions, search resets), so the recorded literals are re-imposed on
// every propagation round instead.
type tautologies struct {
	lits  []core.Lit
	saved int
}

func newTautologies() *tautologies { return &tautologies{} }

func (t *tautologies) Identity() state.ReasonerId { return state.ReasonerTautologies }

// Add records a literal as always true. It takes effect on the next
// propagation.
func (t *tautologies) Add(l core.Lit) { t.lits = append(t.lits, l) }

func (t *tautologies) Propagate(doms *state.Domains) *state.Contradiction {
	for i, l := range t.lits {
		if _, fail := doms.Set(l, state.Inferred(state.ReasonerTautologies, uint32(i))); fail != nil {
			return state.NewContradictionFrom(fail)
		}
	}
	return nil
}

// Explain has nothing to add: a tautology is implied by the empty set of
// literals.
func (t *tautologies) Explain(_ state.InferenceCause, _ core.Lit, _ *state.Domains, _ *state.Explanation) {
}

// The recorded literals are permanent: backtracking only adjusts the
// savepoint count.
func (t *tautologies) SaveState() backtrack.DecLvl {
	t.saved++
	return backtrack.DecLvl(t.saved)
}

func (t *tautologies) NumSaved() int { return t.saved }

func (t *tautologies) RestoreLast() {
	if t.saved == 0 {
		panic("restore without a matching save")
	}
	t.saved--
}

func (t *tautologies) clone() *tautologies {
	return &tautologies{lits: append([]core.Lit(nil), t.lits...), saved: t.saved}
}
