// Package sat implements the clause propagator of the solver: a clause
// database with activity-based forgetting and a two-watched-literal
// propagation scheme operating on bound literals.
package sat

import (
	"math"
	"sort"

	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
)

// ClauseId identifies a clause in the database. Identifiers are stable for
// the lifetime of the clause but may be reused after it is removed.
type ClauseId int32

// NoClause marks the absence of a clause.
const NoClause ClauseId = -1

// Clause is a disjunction of literals, two of which are watched. A clause
// may carry a scope literal: it then only needs to hold when the scope is
// true, and may deactivate itself by setting the scope to false when
// violated.
type Clause struct {
	watch1, watch2 core.Lit
	unwatched      []core.Lit
	n              int

	// Scope is LitTrue for clauses that must always hold.
	Scope core.Lit
	// Learnt clauses may be forgotten when the database is reduced.
	Learnt   bool
	Activity float64
	LBD      uint32
}

// NewClause builds a clause from a simplified disjunction.
func NewClause(d core.Disjunction, learnt bool) *Clause {
	return NewScopedClause(d, core.LitTrue, learnt)
}

// NewScopedClause builds a clause that only needs to hold when scope is true.
func NewScopedClause(d core.Disjunction, scope core.Lit, learnt bool) *Clause {
	lits := d.Lits()
	c := &Clause{n: len(lits), Scope: scope, Learnt: learnt}
	switch {
	case len(lits) >= 2:
		c.watch1, c.watch2 = lits[0], lits[1]
		c.unwatched = append(c.unwatched, lits[2:]...)
	case len(lits) == 1:
		c.watch1 = lits[0]
	}
	return c
}

// Clone returns an independent copy of the clause.
func (c *Clause) Clone() *Clause {
	out := *c
	out.unwatched = append([]core.Lit(nil), c.unwatched...)
	return &out
}

// Len returns the number of literals of the clause.
func (c *Clause) Len() int { return c.n }

// IsEmpty returns true for the empty, always-conflicting clause.
func (c *Clause) IsEmpty() bool { return c.n == 0 }

// HasSingleLiteral returns true for unit-sized clauses.
func (c *Clause) HasSingleLiteral() bool { return c.n == 1 }

// Watch1 returns the first watched literal.
func (c *Clause) Watch1() core.Lit { return c.watch1 }

// Watch2 returns the second watched literal.
func (c *Clause) Watch2() core.Lit { return c.watch2 }

// LitAt returns the i-th literal: the two watches first, then the rest.
func (c *Clause) LitAt(i int) core.Lit {
	switch i {
	case 0:
		return c.watch1
	case 1:
		return c.watch2
	default:
		return c.unwatched[i-2]
	}
}

// Lits calls f on every literal of the clause.
func (c *Clause) Lits(f func(core.Lit)) {
	for i := 0; i < c.n; i++ {
		f(c.LitAt(i))
	}
}

// Contains returns true if l is a literal of the clause.
func (c *Clause) Contains(l core.Lit) bool {
	for i := 0; i < c.n; i++ {
		if c.LitAt(i) == l {
			return true
		}
	}
	return false
}

// SwapWatches exchanges the two watched literals.
func (c *Clause) SwapWatches() { c.watch1, c.watch2 = c.watch2, c.watch1 }

// SetWatch2 promotes the i-th unwatched literal to the second watch.
func (c *Clause) SetWatch2(i int) {
	c.watch2, c.unwatched[i] = c.unwatched[i], c.watch2
}

// MoveWatchesFront places the two most interesting literals in the watch
// slots: entailed literals first, then undecided ones, then falsified
// literals by decreasing falsification time. After the call, if the first
// watch is falsified the whole clause is, and if only the second is, the
// clause is unit.
func (c *Clause) MoveWatchesFront(
	value func(core.Lit) (bool, bool),
	implyingEvent func(core.Lit) backtrack.EventIndex,
) {
	if c.n < 2 {
		return
	}
	priority := func(l core.Lit) int64 {
		v, known := value(l)
		switch {
		case !known:
			return math.MaxInt64 - 1
		case v:
			return math.MaxInt64
		default:
			// falsified: prefer the latest falsification
			return int64(implyingEvent(l.Not()))
		}
	}
	lits := make([]core.Lit, 0, c.n)
	c.Lits(func(l core.Lit) { lits = append(lits, l) })
	sort.SliceStable(lits, func(i, j int) bool { return priority(lits[i]) > priority(lits[j]) })
	c.watch1, c.watch2 = lits[0], lits[1]
	copy(c.unwatched, lits[2:])
}
