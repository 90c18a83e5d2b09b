package state

import (
	"fmt"

	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
)

// Domains is the shared store of all variable domains. On top of the raw
// integer bounds it tracks the presence literal of each variable and an
// implication graph between literals on non-optional variables, used both
// for presence reasoning and for the eager propagation of implications.
//
// A variable whose presence literal is LitTrue is non-optional: emptying
// its domain is an error. An optional variable may see its domain emptied
// as long as its absence is not ruled out: the store then infers the
// negation of its presence literal instead of failing.
type Domains struct {
	doms *IntDomains
	// presence literal of each variable, indexed by VarRef
	presence     []core.Lit
	implications ImplicationGraph
}

// NewDomains creates a store containing only the zero variable.
func NewDomains() *Domains {
	return &Domains{
		doms:         NewIntDomains(),
		presence:     []core.Lit{core.LitTrue},
		implications: NewImplicationGraph(),
	}
}

func clampBounds(lb, ub int) (int, int) {
	if lb > ub {
		panic(fmt.Sprintf("empty initial domain [%d, %d]", lb, ub))
	}
	if lb < core.IntCstMin {
		lb = core.IntCstMin
	}
	if ub > core.IntCstMax {
		ub = core.IntCstMax
	}
	return lb, ub
}

// NewVar creates a new non-optional variable with domain [lb, ub].
// Bounds are clamped to the representable constant range.
func (d *Domains) NewVar(lb, ub int) core.VarRef {
	lb, ub = clampBounds(lb, ub)
	v := d.doms.NewVar(lb, ub)
	d.presence = append(d.presence, core.LitTrue)
	return v
}

// NewOptionalVar creates a variable that is only present when the given
// literal is true. The presence literal must be on a non-optional variable.
func (d *Domains) NewOptionalVar(lb, ub int, presence core.Lit) core.VarRef {
	if d.presence[presence.Variable()] != core.LitTrue {
		panic("presence literal is on an optional variable")
	}
	lb, ub = clampBounds(lb, ub)
	v := d.doms.NewVar(lb, ub)
	d.presence = append(d.presence, presence)
	return v
}

// NumVars returns the number of variables of the store.
func (d *Domains) NumVars() int { return d.doms.NumVars() }

// PresenceOf returns the presence literal of the variable.
func (d *Domains) PresenceOf(v core.VarRef) core.Lit { return d.presence[v] }

// PresenceLit returns the presence literal of the variable of lit.
func (d *Domains) PresenceLit(lit core.Lit) core.Lit { return d.presence[lit.Variable()] }

// IsOptional returns true if the variable may be absent.
func (d *Domains) IsOptional(v core.VarRef) bool { return d.presence[v] != core.LitTrue }

// Present returns the current status of the variable: (true, true) if
// necessarily present, (false, true) if necessarily absent and
// (_, false) if still unknown.
func (d *Domains) Present(v core.VarRef) (present, known bool) {
	prez := d.presence[v]
	if d.Entails(prez) {
		return true, true
	}
	if d.Entails(prez.Not()) {
		return false, true
	}
	return false, false
}

// Entails returns true if the current bounds make lit necessarily true.
func (d *Domains) Entails(lit core.Lit) bool { return d.doms.Entails(lit) }

// Value returns the value of the literal: (v, true) if known to be v,
// (_, false) if undecided.
func (d *Domains) Value(lit core.Lit) (value, known bool) {
	if d.Entails(lit) {
		return true, true
	}
	if d.Entails(lit.Not()) {
		return false, true
	}
	return false, false
}

// Bounds returns the current domain [lb, ub] of the variable.
func (d *Domains) Bounds(v core.VarRef) (lb, ub int) { return d.doms.LB(v), d.doms.UB(v) }

// UB returns the upper bound of the signed variable, in its own view.
func (d *Domains) UB(sv core.SignedVar) int { return int(d.doms.Bound(sv)) }

// LB returns the lower bound of the signed variable, in its own view.
func (d *Domains) LB(sv core.SignedVar) int { return -int(d.doms.Bound(sv.Neg())) }

// IsBound returns true if the domain of the variable is a singleton.
func (d *Domains) IsBound(v core.VarRef) bool {
	lb, ub := d.Bounds(v)
	return lb == ub
}

// Implies returns true if `from => to` is known to hold between literals on
// non-optional variables.
func (d *Domains) Implies(from, to core.Lit) bool {
	return d.implications.Implies(from, to)
}

// AddImplication records `from => to` between literals on non-optional
// variables and eagerly propagates it in the current state. It must only be
// called at the root level.
func (d *Domains) AddImplication(from, to core.Lit) *InvalidUpdate {
	if d.IsOptional(from.Variable()) || d.IsOptional(to.Variable()) {
		panic("implication on optional variables")
	}
	d.implications.Add(from, to)
	if d.Entails(from) {
		if _, fail := d.setNonOptional(to, DirectOrigin(ImpliedBy(from))); fail != nil {
			return fail
		}
	}
	if d.Entails(to.Not()) {
		if _, fail := d.setNonOptional(from.Not(), DirectOrigin(ImpliedBy(to.Not()))); fail != nil {
			return fail
		}
	}
	return nil
}

// Set restricts the domain according to lit, recording cause on the event.
// It returns whether anything changed. A failure to apply the update on a
// variable that cannot be absent is returned as an InvalidUpdate; on an
// optional variable whose presence is still undecided, the update converts
// into the inference of the variable's absence.
func (d *Domains) Set(lit core.Lit, cause Cause) (bool, *InvalidUpdate) {
	prez := d.presence[lit.Variable()]
	if prez == core.LitTrue {
		return d.setNonOptional(lit, DirectOrigin(cause))
	}
	updated, empty := d.doms.SetBound(lit.Svar(), lit.Bound(), DirectOrigin(cause))
	if !empty {
		return updated, nil
	}
	if d.Entails(prez) {
		// the variable is necessarily present, the failure is definitive
		return false, &InvalidUpdate{Literal: lit, Cause: DirectOrigin(cause)}
	}
	// the update would empty the domain of a possibly absent variable:
	// infer the absence of the variable instead
	return d.setNonOptional(prez.Not(), EmptyDomainOrigin(lit, cause))
}

// SetUpperBound is a shorthand for Set on the literal `sv <= ub`.
func (d *Domains) SetUpperBound(sv core.SignedVar, ub int, cause Cause) (bool, *InvalidUpdate) {
	return d.Set(sv.Leq(ub), cause)
}

// setNonOptional applies an update on a variable known to be non-optional,
// then eagerly propagates the implication graph.
func (d *Domains) setNonOptional(lit core.Lit, origin Origin) (bool, *InvalidUpdate) {
	updated, empty := d.doms.SetBound(lit.Svar(), lit.Bound(), origin)
	if empty {
		return false, &InvalidUpdate{Literal: lit, Cause: origin}
	}
	if !updated {
		return false, nil
	}
	queue := []core.Lit{lit}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		var failed *InvalidUpdate
		d.implications.DirectImplicationsOf(cur, func(to core.Lit) {
			if failed != nil {
				return
			}
			origin := DirectOrigin(ImpliedBy(cur))
			up, emp := d.doms.SetBound(to.Svar(), to.Bound(), origin)
			if emp {
				failed = &InvalidUpdate{Literal: to, Cause: origin}
				return
			}
			if up {
				queue = append(queue, to)
			}
		})
		if failed != nil {
			return false, failed
		}
	}
	return true, nil
}

// ImplyingEvent returns the index of the event that made lit true, or
// NoEvent if it holds in the initial state. Lit must be entailed.
func (d *Domains) ImplyingEvent(lit core.Lit) backtrack.EventIndex {
	return d.doms.ImplyingEvent(lit)
}

// EntailingLevel returns the decision level at which lit became true.
func (d *Domains) EntailingLevel(lit core.Lit) backtrack.DecLvl {
	ev := d.ImplyingEvent(lit)
	if ev == backtrack.NoEvent {
		return backtrack.Root
	}
	return d.doms.Trail().DecisionLevel(ev)
}

// Event returns the event at the given trail index.
func (d *Domains) Event(i backtrack.EventIndex) Event { return d.doms.Event(i) }

// Trail exposes the event trail for reader cursors.
func (d *Domains) Trail() *backtrack.Trail[Event] { return d.doms.Trail() }

// CurrentLevel returns the current decision level.
func (d *Domains) CurrentLevel() backtrack.DecLvl { return d.doms.Trail().CurrentLevel() }

// SaveState records a backtrack point on the domain store.
func (d *Domains) SaveState() backtrack.DecLvl { return d.doms.SaveState() }

// NumSaved returns the number of recorded backtrack points.
func (d *Domains) NumSaved() int { return d.doms.NumSaved() }

// RestoreLast undoes all domain changes since the last backtrack point.
func (d *Domains) RestoreLast() { d.doms.RestoreLast() }

// Clone returns an independent deep copy of the store.
func (d *Domains) Clone() *Domains {
	doms := &IntDomains{
		bounds: append([]ValueCause(nil), d.doms.bounds...),
		events: *d.doms.events.Clone(),
	}
	return &Domains{
		doms:         doms,
		presence:     append([]core.Lit(nil), d.presence...),
		implications: d.implications.Clone(),
	}
}
