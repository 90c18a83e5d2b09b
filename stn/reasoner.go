package stn

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/state"
)

// TheoryPropagationLevel selects which deactivation inferences are drawn
// from the network, beyond plain bound propagation.
type TheoryPropagationLevel uint8

const (
	// TheoryPropagationNone disables all deactivation inferences.
	TheoryPropagationNone TheoryPropagationLevel = iota
	// TheoryPropagationBounds deactivates edges contradicted by the
	// current bounds. Cheap as no shortest path is recomputed.
	TheoryPropagationBounds
	// TheoryPropagationEdges deactivates edges that would close a
	// negative cycle when a new edge is activated. Requires shortest
	// path computations and can be very costly.
	TheoryPropagationEdges
	// TheoryPropagationFull enables both kinds of inferences.
	TheoryPropagationFull
)

// ParseTheoryPropagationLevel reads a level from its textual form.
func ParseTheoryPropagationLevel(s string) (TheoryPropagationLevel, error) {
	switch s {
	case "none":
		return TheoryPropagationNone, nil
	case "bounds":
		return TheoryPropagationBounds, nil
	case "edges":
		return TheoryPropagationEdges, nil
	case "full":
		return TheoryPropagationFull, nil
	default:
		return 0, fmt.Errorf("unknown theory propagation level: %q (valid: none, bounds, edges, full)", s)
	}
}

// Bounds returns true if bound-based deactivation is enabled.
func (l TheoryPropagationLevel) Bounds() bool {
	return l == TheoryPropagationBounds || l == TheoryPropagationFull
}

// Edges returns true if path-based deactivation is enabled.
func (l TheoryPropagationLevel) Edges() bool {
	return l == TheoryPropagationEdges || l == TheoryPropagationFull
}

// Config tunes the behavior of the reasoner.
type Config struct {
	TheoryPropagation TheoryPropagationLevel
}

// DefaultConfig enables bound-based deactivation only.
func DefaultConfig() Config {
	return Config{TheoryPropagation: TheoryPropagationBounds}
}

// Inference payloads are packed as `propagator << 2 | kind`.
const (
	// the bound results from the propagation of an edge
	causeEdgeProp uint32 = 0b00
	// edge propagation cycled back, inferring the absence of a node
	causeCyclic uint32 = 0b01
	// the edge was deactivated because an active path closes a negative
	// cycle with it
	causePathDeact uint32 = 0b10
	// the edge was deactivated because the bounds contradict it
	causeBoundsDeact uint32 = 0b11
)

func encodeCause(kind uint32, id PropagatorId) uint32 { return uint32(id)<<2 | kind }

func decodeCause(payload uint32) (kind uint32, id PropagatorId) {
	return payload & 0b11, PropagatorId(payload >> 2)
}

type activationEvent struct {
	edge    PropagatorId
	enabler Enabler
	// false if path-based deactivation can be skipped for this edge
	requireTheoryPropagation bool
}

type boundChangeEvent struct {
	v                    core.SignedVar
	previousUB           int
	newUB                int
	fromBoundPropagation bool
}

type eventOrigin uint8

const (
	originExternal eventOrigin = iota
	originBoundPropagation
	originCycleDetection
	originTheoryPropagation
)

// Stats counts the work done by the reasoner.
type Stats struct {
	Propagations           uint64
	BoundEdgeDeactivations uint64
	TheoryPropagations     uint64
	TheoryDeactivations    uint64
}

// Reasoner is an incremental difference-logic propagator. Edges are
// conditional on literals; once enabled they propagate bound updates
// through the graph and negative cycles are reported as contradictions
// whose explanation is the set of enablers of the cycle.
//
// Once in an inconsistent state, the only valid operation on the network
// is backtracking to a consistent one.
type Reasoner struct {
	config      Config
	constraints *constraintDb
	// adjacency lists of active propagators, indexed by SignedVar
	active         [][]inlinedPropagator
	incomingActive [][]inlinedPropagator
	// activation history, to undo on backtracking
	trail              backtrack.Trail[PropagatorId]
	pendingActivations []activationEvent
	modelEvents        backtrack.Cursor[state.Event]
	// when an edge is deactivated by path-based propagation, the size of
	// the activation trail at that point. Not trailed: the presence of an
	// entry does not mean the edge is currently deactivated.
	lastDisabling       map[PropagatorId]backtrack.EventIndex
	pendingBoundChanges []boundChangeEvent
	dij                 *dij

	stats Stats
	log   *logrus.Entry
}

// NewReasoner creates an empty network.
func NewReasoner(config Config, log *logrus.Entry) *Reasoner {
	return &Reasoner{
		config:        config,
		constraints:   newConstraintDb(),
		lastDisabling: map[PropagatorId]backtrack.EventIndex{},
		dij:           newDij(),
		log:           log,
	}
}

// Identity returns the reasoner identifier used on inferences.
func (r *Reasoner) Identity() state.ReasonerId { return state.ReasonerDiff }

// Stats returns the counters of the reasoner.
func (r *Reasoner) Stats() Stats { return r.stats }

func (r *Reasoner) numNodes() int { return len(r.active) / 2 }

func (r *Reasoner) reserveTimepoint() {
	// slots for both signed views
	r.active = append(r.active, nil, nil)
	r.incomingActive = append(r.incomingActive, nil, nil)
}

// isTimepoint returns true if the signed variable has a slot in the
// network, i.e. participates in some edge.
func (r *Reasoner) isTimepoint(v core.SignedVar) bool { return int(v) < len(r.active) }

// AddHalfReifiedEdge records `literal => target - source <= weight`. The
// propagators keep the domains consistent with the edge whenever literal
// is true, and set literal to false if the edge contradicts the network.
func (r *Reasoner) AddHalfReifiedEdge(literal core.Lit, source, target Timepoint, weight int, doms *state.Domains) {
	for int(source) >= r.numNodes() || int(target) >= r.numNodes() {
		r.reserveTimepoint()
	}

	// literal that is true iff the edge is within its validity scope,
	// i.e. both timepoints are present
	edgeValid := doms.PresenceLit(literal)

	// a source-to-target propagator is valid when `presence(target) =>
	// edge_valid`: updates of the target's domain are then only
	// meaningful if the edge is present. Given that `presence(source) &
	// presence(target) <=> edge_valid`, the propagator becomes valid
	// when `presence(source)` holds, unless it statically always is.
	targetPropagatorValid := core.LitTrue
	if !doms.Implies(doms.PresenceOf(target), edgeValid) {
		targetPropagatorValid = doms.PresenceOf(source)
	}
	sourcePropagatorValid := core.LitTrue
	if !doms.Implies(doms.PresenceOf(source), edgeValid) {
		sourcePropagatorValid = doms.PresenceOf(target)
	}

	// forward view on upper bounds, backward view on lower bounds
	r.recordPropagator(propagator{
		source:  core.Plus(source),
		target:  core.Plus(target),
		weight:  weight,
		enabler: Enabler{Active: literal, Valid: targetPropagatorValid},
	}, doms)
	r.recordPropagator(propagator{
		source:  core.Minus(target),
		target:  core.Minus(source),
		weight:  weight,
		enabler: Enabler{Active: literal, Valid: sourcePropagatorValid},
	}, doms)
}

// AddReifiedEdge records `literal <=> target - source <= weight`.
func (r *Reasoner) AddReifiedEdge(literal core.Lit, source, target Timepoint, weight int, doms *state.Domains) {
	r.AddHalfReifiedEdge(literal, source, target, weight, doms)
	// the negated edge holds when the literal is false
	r.AddHalfReifiedEdge(literal.Not(), target, source, -weight-1, doms)
}

// recordPropagator integrates a propagator in the database and sets up its
// activation, either immediately or through watches on its enabler.
func (r *Reasoner) recordPropagator(p propagator, doms *state.Domains) {
	active, valid := p.enabler.Active, p.enabler.Valid
	edgeValid := doms.PresenceLit(active)
	enabler := p.enabler

	id, how := r.constraints.addPropagator(p)
	switch how {
	case integrationCreated, integrationMerged:
		switch {
		case doms.Entails(active.Not()) || doms.Entails(edgeValid.Not()):
			// can never be active or present, nothing to do
		case doms.Entails(active) && doms.Entails(valid):
			// active at the current and all following levels
			r.pendingActivations = append(r.pendingActivations, activationEvent{
				edge: id, enabler: enabler, requireTheoryPropagation: true,
			})
		default:
			r.constraints.addPropagatorEnabler(id, enabler)
		}
	case integrationTightened:
		// if the tightened group was already propagated, it must be
		// propagated again with its new weight
		if doms.Entails(active) && doms.Entails(valid) {
			r.constraints.group(id).enabler = nil
			r.pendingActivations = append(r.pendingActivations, activationEvent{
				edge: id, enabler: enabler, requireTheoryPropagation: true,
			})
		}
	case integrationNoop:
	}
}

// Propagate processes all domain events and pending activations since the
// last call, propagating enabled edges to the fixpoint.
func (r *Reasoner) Propagate(doms *state.Domains) *state.Contradiction {
	r.stats.Propagations++
	// first, check each new propagator against the initial bounds of its
	// extremities: no events are emitted for initial domains, so this
	// cannot be left to the event loop
	if r.config.TheoryPropagation.Bounds() {
		for {
			id, ok := r.constraints.nextNewConstraint()
			if !ok {
				break
			}
			c := r.constraints.group(id)
			if c.enabler != nil {
				// enabled edges are handled by normal propagation
				continue
			}
			newUB := doms.UB(c.source) + c.weight
			if newUB < doms.LB(c.target) || (c.source == c.target && c.weight < 0) {
				cause := state.Inferred(state.ReasonerDiff, encodeCause(causeBoundsDeact, id))
				for _, e := range c.enablers {
					changed, fail := doms.Set(e.Active.Not(), cause)
					if fail != nil {
						return state.NewContradictionFrom(fail)
					}
					if changed {
						r.stats.BoundEdgeDeactivations++
					}
				}
			}
		}
	}

	for r.modelEvents.NumPending(doms.Trail()) > 0 || len(r.pendingActivations) > 0 {
		// propagate all bound changes before considering new edges:
		// cycle detection on insertion requires a consistent network
		for {
			ev, ok := r.modelEvents.Pop(doms.Trail())
			if !ok {
				break
			}
			origin := originExternal
			if c, isInference := ev.Cause.AsExternalInference(); isInference && c.Writer == state.ReasonerDiff {
				switch kind, _ := decodeCause(c.Payload); kind {
				case causeEdgeProp:
					origin = originBoundPropagation
				case causeCyclic:
					origin = originCycleDetection
				default:
					origin = originTheoryPropagation
				}
			}
			lit := ev.NewLiteral()
			r.constraints.enabledBy(lit, func(e Enabler, id PropagatorId) {
				if doms.Entails(e.Active) && doms.Entails(e.Valid) {
					r.pendingActivations = append(r.pendingActivations, activationEvent{
						edge:    id,
						enabler: e,
						// an edge enabled through path-based deactivation
						// reasoning is already subsumed by an active path
						requireTheoryPropagation: origin != originTheoryPropagation,
					})
				}
			})
			if r.isTimepoint(ev.Affected) {
				r.pendingBoundChanges = append(r.pendingBoundChanges, boundChangeEvent{
					v:                    ev.Affected,
					previousUB:           int(ev.Previous.Value),
					newUB:                int(ev.NewValue),
					fromBoundPropagation: origin == originBoundPropagation,
				})
			}
		}
		// run Dijkstra from all updated bounds; no cycle detection is
		// needed as the network was consistent before the updates
		if fail := r.processBoundChanges(doms, func(core.SignedVar) bool { return false }); fail != nil {
			return state.NewContradictionFrom(fail)
		}

		for len(r.pendingActivations) > 0 {
			event := r.pendingActivations[0]
			r.pendingActivations = r.pendingActivations[1:]
			c := r.constraints.group(event.edge)
			if c.enabler != nil {
				continue
			}
			if c.source == c.target {
				if c.weight < 0 {
					// negative self loop
					expl := &state.Explanation{}
					expl.Push(event.enabler.Active)
					expl.Push(event.enabler.Valid)
					return state.NewContradiction(expl)
				}
				// positive self loop, useless edge
				continue
			}
			c.enabler = &activeEnabler{enabler: event.enabler, event: r.trail.Push(event.edge)}
			c.indexInActive = len(r.active[c.source])
			r.active[c.source] = append(r.active[c.source], inlinedPropagator{
				target: c.target, weight: c.weight, id: event.edge,
			})
			c.indexInIncomingActive = len(r.incomingActive[c.target])
			r.incomingActive[c.target] = append(r.incomingActive[c.target], inlinedPropagator{
				target: c.source, weight: c.weight, id: event.edge,
			})
			// if the bounds already entail the edge, all its inferences
			// could be drawn from the bounds alone
			redundant := -doms.LB(c.source)+doms.UB(c.target) <= c.weight
			if redundant {
				continue
			}
			if contradiction := r.propagateNewEdge(event.edge, doms); contradiction != nil {
				return contradiction
			}
			if r.config.TheoryPropagation.Edges() && event.requireTheoryPropagation {
				if contradiction := r.theoryPropagateEdge(event.edge, doms); contradiction != nil {
					return contradiction
				}
			}
		}
	}
	return nil
}

// propagateNewEdge propagates a newly activated edge in a consistent
// network, following Cesta and Oddi's incremental algorithm: the target
// bound is updated and the change is propagated forward, declaring a
// negative cycle if it reaches back to the source.
func (r *Reasoner) propagateNewEdge(edge PropagatorId, doms *state.Domains) *state.Contradiction {
	c := r.constraints.group(edge)
	source, target, weight := c.source, c.target, c.weight
	cause := state.Inferred(state.ReasonerDiff, encodeCause(causeEdgeProp, edge))
	prev := doms.UB(target)
	newUB := doms.UB(source) + weight
	changed, fail := doms.SetUpperBound(target, newUB, cause)
	if fail != nil {
		return state.NewContradictionFrom(fail)
	}
	if changed {
		r.pendingBoundChanges = append(r.pendingBoundChanges, boundChangeEvent{
			v: target, previousUB: prev, newUB: newUB,
		})
		if f := r.processBoundChanges(doms, func(v core.SignedVar) bool { return v == source }); f != nil {
			return state.NewContradictionFrom(f)
		}
	}
	return nil
}

// theoryPropagateEdge deactivates the inactive edges that would close a
// negative cycle with the newly activated one: for each shortest path
// A -> B through the new edge and each inactive edge B -> A, the edge is
// forced inactive when `dist(A, B) + weight(B, A) < 0`.
func (r *Reasoner) theoryPropagateEdge(edge PropagatorId, doms *state.Domains) *state.Contradiction {
	c := r.constraints.group(edge)
	if present, known := doms.Present(c.target.Variable()); known && !present {
		return nil
	}
	r.stats.TheoryPropagations++
	source, target, weight := c.source, c.target, c.weight

	// distances to the source and from the target in the active graph
	prefixes := r.distances(source, doms, true)
	postfixes := r.distances(target, doms, false)

	for dest, distToDest := range postfixes {
		for _, potential := range r.constraints.potentialOutEdges(dest) {
			orig := potential.Target
			distFromOrig, reachable := prefixes[orig]
			if !reachable {
				continue
			}
			pathLength := distFromOrig + weight + distToDest
			if pathLength+potential.Weight < 0 {
				cause := state.Inferred(state.ReasonerDiff, encodeCause(causePathDeact, potential.Id))
				changed, fail := doms.Set(potential.Presence.Not(), cause)
				if changed || fail != nil {
					r.stats.TheoryDeactivations++
					// remember the state of the activation trail so the
					// explanation can reconstruct the graph of that time
					r.lastDisabling[potential.Id] = r.trail.NextSlot()
					if fail != nil {
						return state.NewContradictionFrom(fail)
					}
				}
			}
		}
	}
	return nil
}

// distances computes shortest path lengths in the graph of active
// propagators, from all nodes to `node` (backward) or from `node` to all
// nodes (forward). The current upper bounds form a valid potential
// function, allowing Dijkstra despite negative weights.
func (r *Reasoner) distances(node core.SignedVar, doms *state.Domains, backward bool) map[core.SignedVar]int {
	pot := func(v core.SignedVar) int { return doms.UB(v) }
	// reduced distance of each settled or queued node
	reduced := map[core.SignedVar]int{node: 0}
	h := newMinHeap()
	h.insertInit(node, 0)
	for {
		v, rc, ok := h.pop()
		if !ok {
			break
		}
		if rc > reduced[v] {
			continue
		}
		edges := r.active[v]
		if backward {
			edges = r.incomingActive[v]
		}
		for _, e := range edges {
			next := e.target
			if present, known := doms.Present(next.Variable()); known && !present {
				continue
			}
			var cost int
			if backward {
				// edge next -> v with weight e.weight
				cost = rc + e.weight + pot(next) - pot(v)
			} else {
				cost = rc + e.weight + pot(v) - pot(next)
			}
			if old, seen := reduced[next]; !seen || cost < old {
				reduced[next] = cost
				h.update(next, cost, e.id)
			}
		}
	}
	// convert reduced costs back to true distances
	out := make(map[core.SignedVar]int, len(reduced))
	for v, rc := range reduced {
		if backward {
			out[v] = rc - pot(v) + pot(node)
		} else {
			out[v] = rc - pot(node) + pot(v)
		}
	}
	return out
}

// explainBoundPropagation explains `lit`, inferred by propagating the
// given edge: the enabler of the edge and the source bound it propagated.
func (r *Reasoner) explainBoundPropagation(lit core.Lit, id PropagatorId, out *state.Explanation) {
	c := r.constraints.group(id)
	enabler := c.enabler.enabler
	out.Push(enabler.Active)
	out.Push(enabler.Valid)
	out.Push(c.source.Leq(int(lit.Bound()) - c.weight))
}

// extractCycle reconstructs the negative cycle closed by the given edge,
// walking the chain of bound propagations from its source back to its
// target. The explanation is the enablers of all edges of the cycle.
func (r *Reasoner) extractCycle(id PropagatorId, doms *state.Domains, out *state.Explanation) {
	lastEdge := r.constraints.group(id)
	trigger := lastEdge.enabler.enabler
	out.Push(trigger.Active)
	out.Push(trigger.Valid)

	cur := lastEdge.source
	for {
		lit := cur.Leq(doms.UB(cur))
		ev := doms.Event(doms.ImplyingEvent(lit))
		cause, ok := ev.Cause.AsExternalInference()
		if !ok || cause.Writer != state.ReasonerDiff {
			panic("bound on the cycle not set by edge propagation")
		}
		kind, edge := decodeCause(cause.Payload)
		if kind != causeEdgeProp {
			panic("bound on the cycle not set by edge propagation")
		}
		c := r.constraints.group(edge)
		cur = c.source
		trigger := c.enabler.enabler
		out.Push(trigger.Active)
		out.Push(trigger.Valid)
		if cur == lastEdge.target {
			return
		}
	}
}

// explainPathDeactivation explains the deactivation of an edge by finding
// the active path that closed a negative cycle with it. The path is looked
// up in the graph as it was at the time of the deactivation, restricted to
// the edges activated before it.
func (r *Reasoner) explainPathDeactivation(id PropagatorId, out *state.Explanation) {
	edge := r.constraints.group(id)
	eventAfter := r.lastDisabling[id]

	type snapshotEdge struct {
		source, target core.SignedVar
		weight         int
		id             PropagatorId
	}
	var edges []snapshotEdge
	for gid, g := range r.constraints.groups {
		if g.enabler != nil && g.enabler.event < eventAfter {
			edges = append(edges, snapshotEdge{g.source, g.target, g.weight, PropagatorId(gid)})
		}
	}

	// Bellman-Ford from the target of the deactivated edge; the graph may
	// hold negative weights and no potential function is available for
	// the snapshot, but the path is short-lived explanation work
	dist := map[core.SignedVar]int{edge.target: 0}
	pred := map[core.SignedVar]PropagatorId{}
	for changed := true; changed; {
		changed = false
		for _, e := range edges {
			d, seen := dist[e.source]
			if !seen {
				continue
			}
			if nd, ok := dist[e.target]; !ok || d+e.weight < nd {
				dist[e.target] = d + e.weight
				pred[e.target] = e.id
				changed = true
			}
		}
	}

	cur := edge.source
	for cur != edge.target {
		pathEdge, ok := pred[cur]
		if !ok {
			panic("no explaining path in network")
		}
		g := r.constraints.group(pathEdge)
		enabler := g.enabler.enabler
		out.Push(enabler.Active)
		out.Push(enabler.Valid)
		cur = g.source
	}
}

// Explain rebuilds the implying literals of an inference made by the
// reasoner, identified by its packed cause.
func (r *Reasoner) Explain(cause state.InferenceCause, lit core.Lit, doms *state.Domains, out *state.Explanation) {
	kind, id := decodeCause(cause.Payload)
	switch kind {
	case causeEdgeProp:
		r.explainBoundPropagation(lit, id, out)
	case causeCyclic:
		r.extractCycle(id, doms, out)
	case causeBoundsDeact:
		c := r.constraints.group(id)
		// the edge would entail `target >= ub(source) + weight`, which
		// contradicts the current bounds
		out.Push(c.source.Leq(doms.UB(c.source)))
		out.Push(c.target.Neg().Leq(-doms.LB(c.target)))
	case causePathDeact:
		r.explainPathDeactivation(id, out)
	}
}

// SaveState records a backtrack point on the network.
func (r *Reasoner) SaveState() backtrack.DecLvl {
	if len(r.pendingActivations) > 0 {
		panic("cannot save the network state with a propagation pending")
	}
	r.trail.SaveState()
	return r.constraints.SaveState()
}

// NumSaved returns the number of recorded backtrack points.
func (r *Reasoner) NumSaved() int { return r.trail.NumSaved() }

// RestoreLast undoes all network changes since the last backtrack point.
func (r *Reasoner) RestoreLast() {
	r.pendingActivations = r.pendingActivations[:0]
	r.pendingBoundChanges = r.pendingBoundChanges[:0]
	r.trail.RestoreLastWith(func(edge PropagatorId) {
		c := r.constraints.group(edge)
		r.active[c.source] = r.active[c.source][:len(r.active[c.source])-1]
		r.incomingActive[c.target] = r.incomingActive[c.target][:len(r.incomingActive[c.target])-1]
		c.enabler = nil
	})
	r.constraints.RestoreLast()
}

// Clone returns an independent deep copy of the reasoner.
func (r *Reasoner) Clone() *Reasoner {
	out := &Reasoner{
		config:              r.config,
		constraints:         r.constraints.clone(),
		active:              make([][]inlinedPropagator, len(r.active)),
		incomingActive:      make([][]inlinedPropagator, len(r.incomingActive)),
		trail:               *r.trail.Clone(),
		pendingActivations:  append([]activationEvent(nil), r.pendingActivations...),
		modelEvents:         r.modelEvents,
		lastDisabling:       make(map[PropagatorId]backtrack.EventIndex, len(r.lastDisabling)),
		pendingBoundChanges: append([]boundChangeEvent(nil), r.pendingBoundChanges...),
		dij:                 newDij(),
		stats:               r.stats,
		log:                 r.log,
	}
	for i, l := range r.active {
		out.active[i] = append([]inlinedPropagator(nil), l...)
	}
	for i, l := range r.incomingActive {
		out.incomingActive[i] = append([]inlinedPropagator(nil), l...)
	}
	for k, v := range r.lastDisabling {
		out.lastDisabling[k] = v
	}
	return out
}
