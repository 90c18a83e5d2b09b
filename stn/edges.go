// Package stn implements the difference-logic reasoner: an incremental
// simple temporal network over the bounds of integer variables. Edges
// `target - source <= weight` are conditional on literals and propagate
// bound updates through the graph, detecting negative cycles.
package stn

import (
	"fmt"

	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
)

// Timepoint is a temporal reference, i.e. a variable interpreted as an
// absolute time.
type Timepoint = core.VarRef

// Edge is the constraint `target - source <= weight`. An edge is either in
// canonical form or in negated form: of `b - a <= 6` and `b - a > 6`, one
// is the negation of the other.
type Edge struct {
	Source Timepoint
	Target Timepoint
	Weight int
}

// Negated returns the edge that holds iff this one does not:
// not(b - a <= w) is (a - b <= -w - 1).
func (e Edge) Negated() Edge {
	return Edge{Source: e.Target, Target: e.Source, Weight: -e.Weight - 1}
}

func (e Edge) String() string {
	return fmt.Sprintf("%s - %s <= %d", e.Target, e.Source, e.Weight)
}

// Enabler gives the conditions under which a propagator is enabled: it
// must be propagated iff both literals are true.
type Enabler struct {
	// Active is true (but not necessarily present) when the propagator
	// must be active if present.
	Active core.Lit
	// Valid is true when it is known to be sound to propagate a change
	// from the source to the target. In the simplest case it is the
	// presence of the Active literal.
	Valid core.Lit
}

// PropagatorId identifies a directed propagator in the constraint database.
type PropagatorId uint32

// propagator represents the fact that an update on the source bound must be
// reflected on the target bound. A classical edge `source --w--> target`
// yields two propagators: one on upper bounds, one on lower bounds
// (expressed on the minus views).
type propagator struct {
	source  core.SignedVar
	target  core.SignedVar
	weight  int
	enabler Enabler
}

// propagatorGroup is a set of propagators that differ only by their
// enabling conditions.
type propagatorGroup struct {
	source core.SignedVar
	target core.SignedVar
	weight int
	// non-nil when the propagator participates in propagation, with the
	// index of the activation event on the network trail
	enabler *activeEnabler
	// potential enablers: the group becomes active when one holds
	enablers []Enabler
	// positions of the inlined copies in the active propagator lists,
	// meaningful only while the group is enabled
	indexInActive         int
	indexInIncomingActive int
}

type activeEnabler struct {
	enabler Enabler
	event   backtrack.EventIndex
}

// inlinedPropagator carries the target and weight of an active propagator,
// inlined in the adjacency lists to speed up propagation.
type inlinedPropagator struct {
	target core.SignedVar
	weight int
	id     PropagatorId
}

// PropagatorTarget is a potential (not yet active) outgoing edge of a node.
type PropagatorTarget struct {
	Target core.SignedVar
	Weight int
	// Presence is true iff the edge must be present in the network.
	Presence core.Lit
	Id       PropagatorId
}
