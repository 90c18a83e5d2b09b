package state

import (
	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
)

// IntDomains stores the bounds of all integer variables, together with the
// trail of all updates ever applied to them.
type IntDomains struct {
	// current bound of each signed variable, indexed by core.SignedVar
	bounds []ValueCause
	events backtrack.Trail[Event]
}

// NewIntDomains creates a store containing only the zero variable, with
// domain [0,0].
func NewIntDomains() *IntDomains {
	d := &IntDomains{}
	v := d.NewVar(0, 0)
	if v != core.VarZero {
		panic("zero variable is not first")
	}
	return d
}

// NewVar creates a new variable with domain [lb, ub].
func (d *IntDomains) NewVar(lb, ub int) core.VarRef {
	v := core.VarRef(len(d.bounds) / 2)
	// plus view first, then minus view
	d.bounds = append(d.bounds,
		ValueCause{Value: core.UpperBound(ub), Cause: backtrack.NoEvent},
		ValueCause{Value: core.UpperBound(-lb), Cause: backtrack.NoEvent})
	return v
}

// NumVars returns the number of variables in the store.
func (d *IntDomains) NumVars() int { return len(d.bounds) / 2 }

// Bound returns the current bound of the signed variable.
func (d *IntDomains) Bound(sv core.SignedVar) core.UpperBound {
	return d.bounds[sv].Value
}

// UB returns the upper bound of the variable.
func (d *IntDomains) UB(v core.VarRef) int { return int(d.bounds[core.Plus(v)].Value) }

// LB returns the lower bound of the variable.
func (d *IntDomains) LB(v core.VarRef) int { return -int(d.bounds[core.Minus(v)].Value) }

// Entails returns true if the current bounds make lit necessarily true.
func (d *IntDomains) Entails(lit core.Lit) bool {
	return d.bounds[lit.Svar()].Value.Stronger(lit.Bound())
}

// SetBound restricts the bound of sv to value. It returns whether anything
// changed and whether the domain of the variable became empty. The event is
// recorded on the trail even when it empties the domain: recovery is the
// responsibility of the caller.
func (d *IntDomains) SetBound(sv core.SignedVar, value core.UpperBound, cause Origin) (updated, empty bool) {
	current := d.bounds[sv]
	if current.Value.Stronger(value) {
		return false, false
	}
	idx := d.events.Push(Event{
		Affected: sv,
		Previous: current,
		NewValue: value,
		Cause:    cause,
	})
	d.bounds[sv] = ValueCause{Value: value, Cause: idx}
	other := d.bounds[sv.Neg()].Value
	return true, !value.CompatibleWithSymmetric(other)
}

// ImplyingEvent returns the index of the earliest event that entails lit,
// or NoEvent if lit holds in the initial state.
// It must only be called on an entailed literal.
func (d *IntDomains) ImplyingEvent(lit core.Lit) backtrack.EventIndex {
	cur := d.bounds[lit.Svar()].Cause
	for cur != backtrack.NoEvent {
		ev := d.events.Get(cur)
		if ev.Previous.Value.Stronger(lit.Bound()) {
			cur = ev.Previous.Cause
		} else {
			break
		}
	}
	return cur
}

// Event returns the event at the given trail index.
func (d *IntDomains) Event(i backtrack.EventIndex) Event { return d.events.Get(i) }

// Trail exposes the event trail, for reader cursors.
func (d *IntDomains) Trail() *backtrack.Trail[Event] { return &d.events }

func (d *IntDomains) undo(e Event) {
	d.bounds[e.Affected] = e.Previous
}

// UndoLastEvent pops the latest event of the current decision level and
// restores the bound it had changed. Used by conflict analysis to rewind
// the current level one inference at a time.
func (d *IntDomains) UndoLastEvent() (Event, bool) {
	e, ok := d.events.Pop()
	if ok {
		d.undo(e)
	}
	return e, ok
}

// SaveState records a backtrack point.
func (d *IntDomains) SaveState() backtrack.DecLvl { return d.events.SaveState() }

// NumSaved returns the number of recorded backtrack points.
func (d *IntDomains) NumSaved() int { return d.events.NumSaved() }

// RestoreLast undoes all events since the last backtrack point.
func (d *IntDomains) RestoreLast() {
	d.events.RestoreLastWith(d.undo)
}
