package sat

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/state"
)

// Params tunes the growth of the clause database.
type Params struct {
	// number of learnt clauses initially allowed in the database,
	// on top of a fraction of the problem clauses
	InitLearntBase  float64
	InitLearntRatio float64
	// growth factor of the allowed learnt clauses at each expansion
	DbExpansionRatio float64
	// number of conflicts between two database expansions; in between,
	// reaching the limit triggers a reduction instead
	ConflictsBeforeDbExpansion uint64
}

// DefaultParams returns the usual minisat-derived constants.
func DefaultParams() Params {
	return Params{
		InitLearntBase:             1000,
		InitLearntRatio:            1.0 / 3.0,
		DbExpansionRatio:           1.05,
		ConflictsBeforeDbExpansion: 5000,
	}
}

// Stats counts the work done by the propagator.
type Stats struct {
	Conflicts    uint64
	Propagations uint64
	DbReductions uint64
}

type pendingClause struct {
	id          ClauseId
	asserted    core.Lit
	hasAsserted bool
}

// Reasoner is the clause propagator. Clauses watch the negation of two of
// their literals; when a watched negation becomes true the clause looks for
// a replacement watch, propagates its remaining literal, or reports a
// conflict.
type Reasoner struct {
	params  Params
	clauses *ClauseDb
	watches *core.Watches[ClauseId]
	cursor  backtrack.Cursor[state.Event]

	// clauses added since the last propagation
	pending []pendingClause
	// clauses locked because they justify a literal of the trail
	locks     map[ClauseId]int
	lockTrail backtrack.Trail[ClauseId]
	// reusable buffer for the watches of the literal being processed
	working []core.Watch[ClauseId]

	allowedLearnt            float64
	conflictsAtLastExpansion uint64

	stats Stats
	log   *logrus.Entry
}

// NewReasoner creates an empty clause propagator.
func NewReasoner(params Params, log *logrus.Entry) *Reasoner {
	return &Reasoner{
		params:        params,
		clauses:       NewClauseDb(DefaultClauseDbParams()),
		watches:       core.NewWatches[ClauseId](),
		locks:         map[ClauseId]int{},
		allowedLearnt: math.NaN(),
		log:           log,
	}
}

// Identity returns the reasoner identifier used on inferences.
func (r *Reasoner) Identity() state.ReasonerId { return state.ReasonerSat }

// Stats returns the counters of the propagator.
func (r *Reasoner) Stats() Stats { return r.stats }

// AddClause records a clause of the problem definition.
func (r *Reasoner) AddClause(d core.Disjunction) ClauseId {
	return r.addClauseImpl(NewClause(d, false))
}

// AddScopedClause records a clause that only needs to hold when scope is true.
func (r *Reasoner) AddScopedClause(d core.Disjunction, scope core.Lit) ClauseId {
	return r.addClauseImpl(NewScopedClause(d, scope, false))
}

// AddForgettableClause records a clause that is implied by the problem and
// that the database reduction is allowed to drop.
func (r *Reasoner) AddForgettableClause(d core.Disjunction) {
	r.addClauseImpl(NewClause(d, true))
}

// AddLearntClause records an asserting clause produced by conflict
// analysis. On the next propagation the asserted literal is set true, even
// if the clause is not unit.
func (r *Reasoner) AddLearntClause(d core.Disjunction, asserted core.Lit, lbd uint32) {
	r.stats.Conflicts++
	r.clauses.Decay()
	c := NewClause(d, true)
	c.LBD = lbd
	id := r.clauses.Add(c)
	r.pending = append(r.pending, pendingClause{id: id, asserted: asserted, hasAsserted: true})
}

func (r *Reasoner) addClauseImpl(c *Clause) ClauseId {
	id := r.clauses.Add(c)
	r.pending = append(r.pending, pendingClause{id: id})
	return id
}

// Propagate processes new clauses and all domain events since the last
// call, propagating unit clauses. On conflict it returns the violated
// clause as an explanation.
func (r *Reasoner) Propagate(dom *state.Domains) *state.Contradiction {
	violated := r.propagateImpl(dom)
	if violated == NoClause {
		return nil
	}
	c := r.clauses.Get(violated)
	expl := &state.Explanation{}
	c.Lits(func(l core.Lit) { expl.Push(l.Not()) })
	if c.Scope != core.LitTrue {
		expl.Push(c.Scope)
	}
	r.clauses.BumpActivity(violated)
	return state.NewContradiction(expl)
}

func (r *Reasoner) propagateImpl(dom *state.Domains) ClauseId {
	for len(r.pending) > 0 {
		p := r.pending[0]
		r.pending = r.pending[1:]
		if conflict := r.processArbitraryClause(p.id, dom); conflict != NoClause {
			return conflict
		}
		if p.hasAsserted && !dom.Entails(p.asserted) {
			r.setFromUnitPropagation(p.asserted, p.id, dom)
		}
	}
	r.scaleDatabase()
	return r.propagateEnqueued(dom)
}

// processArbitraryClause integrates a clause with no assumption on its
// current status, setting up watches and propagating if needed.
// It returns the clause if it is violated beyond recovery.
func (r *Reasoner) processArbitraryClause(id ClauseId, dom *state.Domains) ClauseId {
	c := r.clauses.Get(id)
	if c.IsEmpty() {
		return id
	}
	if c.HasSingleLiteral() {
		l := c.Watch1()
		r.watches.AddWatch(id, l.Not())
		v, known := dom.Value(l)
		switch {
		case !known:
			r.setFromUnitPropagation(l, id, dom)
			return NoClause
		case v:
			return NoClause
		default:
			return id
		}
	}
	r.moveWatchesFront(id, dom)
	c = r.clauses.Get(id)
	l0, l1 := c.Watch1(), c.Watch2()

	switch {
	case dom.Entails(l0):
		// satisfied, just set up watches
		r.setWatchOnFirstLiterals(id)
		return NoClause
	case dom.Entails(l0.Not()):
		// all literals are false
		r.setWatchOnFirstLiterals(id)
		if c.Scope == core.LitTrue {
			return id
		}
		v, known := dom.Value(c.Scope)
		switch {
		case known && v:
			return id // necessarily active: conflict
		case known && !v:
			return NoClause // already inactive
		default:
			r.setFromUnitPropagation(c.Scope.Not(), id, dom)
			return NoClause
		}
	default:
		if _, known := dom.Value(l1); !known {
			// at least two undecided literals, nothing to propagate
			r.setWatchOnFirstLiterals(id)
			return NoClause
		}
		r.processUnitClause(id, dom)
		return NoClause
	}
}

func (r *Reasoner) processUnitClause(id ClauseId, dom *state.Domains) {
	c := r.clauses.Get(id)
	if c.HasSingleLiteral() {
		l := c.Watch1()
		r.watches.AddWatch(id, l.Not())
		r.setFromUnitPropagation(l, id, dom)
		return
	}
	// the first literal is undecided, all others are false
	r.moveWatchesFront(id, dom)
	c = r.clauses.Get(id)
	r.setWatchOnFirstLiterals(id)
	r.setFromUnitPropagation(c.Watch1(), id, dom)
}

func (r *Reasoner) moveWatchesFront(id ClauseId, dom *state.Domains) {
	r.clauses.Get(id).MoveWatchesFront(dom.Value, dom.ImplyingEvent)
}

func (r *Reasoner) setWatchOnFirstLiterals(id ClauseId) {
	c := r.clauses.Get(id)
	r.watches.AddWatch(id, c.Watch1().Not())
	r.watches.AddWatch(id, c.Watch2().Not())
}

// propagateEnqueued processes all new domain events, advancing the watches
// of the clauses they trigger. It returns the first violated clause.
func (r *Reasoner) propagateEnqueued(dom *state.Domains) ClauseId {
	for {
		ev, ok := r.cursor.Pop(dom.Trail())
		if !ok {
			return NoClause
		}
		newLit := ev.NewLiteral()
		r.working = r.working[:0]
		r.watches.MoveWatchesTo(newLit, &r.working)
		conflict := NoClause
		for _, w := range r.working {
			watched := w.Lit(newLit.Svar())
			id := w.Watcher
			if conflict == NoClause && ev.MakesTrue(watched) {
				if !r.propagateClause(id, newLit, dom) {
					conflict = id
				}
			} else {
				// not triggered by this event, or a conflict was already
				// found: restore the watch untouched
				r.watches.AddWatch(id, watched)
			}
		}
		if conflict != NoClause {
			return conflict
		}
	}
}

// propagateClause advances a clause whose watched literal p became true.
// The watch was already removed; the method is responsible for setting a
// valid one. It returns false if the clause is violated.
func (r *Reasoner) propagateClause(id ClauseId, p core.Lit, dom *state.Domains) bool {
	c := r.clauses.Get(id)
	if c.HasSingleLiteral() {
		// only literal is false: conflict
		r.watches.AddWatch(id, p)
		return false
	}
	if p.Entails(c.Watch1().Not()) {
		c.SwapWatches()
	}
	if dom.Entails(c.Watch1()) {
		// clause satisfied, restore the watch
		r.watches.AddWatch(id, c.Watch2().Not())
		return true
	}
	// look among the unwatched literals for a replacement watch
	for i := 0; i < len(c.unwatched); i++ {
		l := c.unwatched[i]
		if !dom.Entails(l.Not()) {
			c.SetWatch2(i)
			r.watches.AddWatch(id, l.Not())
			return true
		}
	}
	// no replacement, the clause is unit or violated
	r.watches.AddWatch(id, c.Watch2().Not())
	first := c.Watch1()
	v, known := dom.Value(first)
	switch {
	case known && v:
		return true
	case known && !v:
		// violated: deactivate the clause if its scope allows it
		sv, sknown := dom.Value(c.Scope)
		switch {
		case sknown && sv:
			return false
		case sknown && !sv:
			return true
		default:
			r.setFromUnitPropagation(c.Scope.Not(), id, dom)
			return true
		}
	default:
		r.setFromUnitPropagation(first, id, dom)
		return true
	}
}

func (r *Reasoner) setFromUnitPropagation(l core.Lit, id ClauseId, dom *state.Domains) {
	// by the unit propagation invariant the negation of l is not entailed,
	// so the update cannot fail; it may still be a no-op if the variable
	// was already inferred absent
	changed, fail := dom.Set(l, state.Inferred(state.ReasonerSat, uint32(id)))
	if fail != nil {
		panic("invalid unit propagation")
	}
	if changed {
		// lock the clause: it may be needed to explain the literal
		r.lock(id)
		r.stats.Propagations++
	}
}

func (r *Reasoner) lock(id ClauseId) {
	r.locks[id]++
	r.lockTrail.Push(id)
}

func (r *Reasoner) isLocked(id ClauseId) bool { return r.locks[id] > 0 }

func (r *Reasoner) unwatch(id ClauseId, c *Clause) {
	r.watches.RemoveWatchesOf(id, c.Watch1().Not().Svar())
	if !c.HasSingleLiteral() {
		r.watches.RemoveWatchesOf(id, c.Watch2().Not().Svar())
	}
}

// scaleDatabase grows or shrinks the room for learnt clauses: periodically
// the allowance is expanded, otherwise the least active unlocked learnt
// clauses are dropped.
func (r *Reasoner) scaleDatabase() {
	if math.IsNaN(r.allowedLearnt) {
		initial := r.clauses.NumClauses() - r.clauses.NumLearnt()
		r.allowedLearnt = r.params.InitLearntBase + float64(initial)*r.params.InitLearntRatio
	}
	if r.clauses.NumLearnt()-len(r.locks) < int(r.allowedLearnt) {
		return
	}
	if r.stats.Conflicts-r.conflictsAtLastExpansion >= r.params.ConflictsBeforeDbExpansion {
		r.allowedLearnt *= r.params.DbExpansionRatio
		r.conflictsAtLastExpansion = r.stats.Conflicts
		return
	}
	removed := r.clauses.ReduceDb(r.isLocked, r.unwatch)
	r.stats.DbReductions++
	if r.log != nil {
		r.log.WithFields(logrus.Fields{"removed": removed, "learnt": r.clauses.NumLearnt()}).
			Debug("reduced clause database")
	}
}

// Explain rebuilds the implying literals of a propagation made by a clause.
func (r *Reasoner) Explain(cause state.InferenceCause, lit core.Lit, _ *state.Domains, out *state.Explanation) {
	id := ClauseId(cause.Payload)
	// clauses useful in explanations are good clauses to keep around
	r.clauses.BumpActivity(id)
	c := r.clauses.Get(id)
	c.Lits(func(l core.Lit) {
		if !l.Entails(lit) {
			out.Push(l.Not())
		}
	})
}

// SaveState records a backtrack point on the clause locks.
func (r *Reasoner) SaveState() backtrack.DecLvl { return r.lockTrail.SaveState() }

// NumSaved returns the number of recorded backtrack points.
func (r *Reasoner) NumSaved() int { return r.lockTrail.NumSaved() }

// RestoreLast releases the clause locks taken since the last backtrack point.
func (r *Reasoner) RestoreLast() {
	r.lockTrail.RestoreLastWith(func(id ClauseId) {
		r.locks[id]--
		if r.locks[id] == 0 {
			delete(r.locks, id)
		}
	})
}

// Clone returns an independent deep copy of the propagator.
func (r *Reasoner) Clone() *Reasoner {
	out := &Reasoner{
		params:                   r.params,
		clauses:                  r.clauses.Clone(),
		watches:                  r.watches.Clone(),
		cursor:                   r.cursor,
		pending:                  append([]pendingClause(nil), r.pending...),
		locks:                    make(map[ClauseId]int, len(r.locks)),
		lockTrail:                *r.lockTrail.Clone(),
		allowedLearnt:            r.allowedLearnt,
		conflictsAtLastExpansion: r.conflictsAtLastExpansion,
		stats:                    r.stats,
		log:                      r.log,
	}
	for id, n := range r.locks {
		out.locks[id] = n
	}
	return out
}
