package solver

import (
	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/state"
)

// Assignment is a query-only snapshot of the domains at a solution. It
// stays valid after the solver moves on.
type Assignment struct {
	doms *state.Domains
}

func newAssignment(d *state.Domains) *Assignment {
	return &Assignment{doms: d.Clone()}
}

// LowerBound returns the lower bound of the variable.
func (a *Assignment) LowerBound(v core.VarRef) int {
	lb, _ := a.doms.Bounds(v)
	return lb
}

// UpperBound returns the upper bound of the variable.
func (a *Assignment) UpperBound(v core.VarRef) int {
	_, ub := a.doms.Bounds(v)
	return ub
}

// Value returns the truth value of the literal, with known=false when it
// is neither entailed nor contradicted.
func (a *Assignment) Value(l core.Lit) (value, known bool) {
	return a.doms.Value(l)
}

// ValueOf returns the value of the variable; ok is false when the
// variable is not bound to a single value.
func (a *Assignment) ValueOf(v core.VarRef) (value int, ok bool) {
	lb, ub := a.doms.Bounds(v)
	return lb, lb == ub
}

// Present reports whether the variable is present, with known=false when
// its presence is undecided.
func (a *Assignment) Present(v core.VarRef) (present, known bool) {
	return a.doms.Present(v)
}

// NumVars returns the number of variables, including the zero variable.
func (a *Assignment) NumVars() int { return a.doms.NumVars() }

// BoundVars calls f for every present variable bound to a single value.
func (a *Assignment) BoundVars(f func(v core.VarRef, value int)) {
	for i := 1; i < a.doms.NumVars(); i++ {
		v := core.VarRef(i)
		if present, known := a.doms.Present(v); known && !present {
			continue
		}
		if value, ok := a.ValueOf(v); ok {
			f(v, value)
		}
	}
}
