package stn

import (
	"container/heap"

	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/state"
)

// dij runs an incremental Dijkstra from all recently updated bounds,
// propagating them through the active propagators. Negative weights are
// handled by reduced costs: the upper bounds before the updates form a
// valid potential function of the graph.
type dij struct {
	modifiedVars []core.SignedVar
	// potential of each touched node: its upper bound at the last
	// propagation
	potential map[core.SignedVar]int
	// new upper bound of each initially modified node
	initUB map[core.SignedVar]int
	heap   minHeap
}

func newDij() *dij {
	return &dij{
		potential: map[core.SignedVar]int{},
		initUB:    map[core.SignedVar]int{},
		heap:      newMinHeap(),
	}
}

func (d *dij) clear() {
	for _, v := range d.modifiedVars {
		delete(d.potential, v)
		delete(d.initUB, v)
	}
	d.modifiedVars = d.modifiedVars[:0]
	d.heap.clear()
}

// addModifiedBound records an externally updated bound. Updates of a node
// must come in trail order: the potential is the upper bound before the
// first update.
func (d *dij) addModifiedBound(v core.SignedVar, previousUB, ub int) {
	if previousUB == ub {
		return
	}
	if _, ok := d.potential[v]; !ok {
		d.potential[v] = previousUB
		d.modifiedVars = append(d.modifiedVars, v)
	}
	d.initUB[v] = ub
}

// run propagates all recorded updates. cyclic identifies the nodes for
// which a new upper bound means a negative cycle: reaching one forces the
// absence of the node (or fails if it cannot be absent).
func (d *dij) run(r *Reasoner, doms *state.Domains, cyclic func(core.SignedVar) bool) *state.InvalidUpdate {
	const originPotential = core.IntCstMax
	count := 0
	for _, v := range d.modifiedVars {
		if present, known := doms.Present(v.Variable()); known && !present {
			continue
		}
		if !r.isTimepoint(v) {
			continue
		}
		ub := d.initUB[v]
		if ub != doms.UB(v) {
			// the bound was updated again by our own edge propagation
			// since this event, nothing left to do for it
			continue
		}
		d.heap.insertInit(v, originPotential+ub-d.potential[v])
		count++
	}
	if count == 0 {
		return nil
	}

	for {
		v, reducedCost, ok := d.heap.pop()
		if !ok {
			return nil
		}
		if present, known := doms.Present(v.Variable()); known && !present {
			continue
		}
		sourcePotential := d.potential[v]
		newUB := reducedCost - originPotential + sourcePotential
		if cyclic(v) {
			// the propagation cycled back: the path from v to itself is
			// negative, so v cannot be present
			pred := d.heap.pred[v]
			prez := doms.PresenceOf(v.Variable())
			cause := state.Inferred(state.ReasonerDiff, encodeCause(causeCyclic, pred))
			if _, fail := doms.Set(prez.Not(), cause); fail != nil {
				return fail
			}
		}
		if pred, hasPred := d.heap.pred[v]; hasPred {
			cause := state.Inferred(state.ReasonerDiff, encodeCause(causeEdgeProp, pred))
			if _, fail := doms.SetUpperBound(v, newUB, cause); fail != nil {
				return fail
			}
		}
		if present, known := doms.Present(v.Variable()); known && !present {
			// the update made the node absent, stop processing it
			continue
		}

		// the new upper bound of v is the length of the shortest path
		// ORIGIN -> v: deactivate any potential edge out of v that would
		// close a negative cycle through ORIGIN
		for _, out := range r.constraints.potentialOutEdges(v) {
			if doms.Entails(out.Presence.Not()) {
				continue
			}
			distBack := -doms.LB(out.Target)
			if newUB+out.Weight+distBack < 0 {
				cause := state.Inferred(state.ReasonerDiff, encodeCause(causeBoundsDeact, out.Id))
				if _, fail := doms.Set(out.Presence.Not(), cause); fail != nil {
					return fail
				}
			}
		}

		for _, outgoing := range r.active[v] {
			target := outgoing.target
			if present, known := doms.Present(target.Variable()); known && !present {
				continue
			}
			currentUB := doms.UB(target)
			if _, ok := d.potential[target]; !ok {
				d.potential[target] = currentUB
				d.modifiedVars = append(d.modifiedVars, target)
			}
			if newUB+outgoing.weight < currentUB {
				cost := reducedCost + outgoing.weight + sourcePotential - d.potential[target]
				d.heap.update(target, cost, outgoing.id)
			}
		}
	}
}

// processBoundChanges feeds the pending bound changes into the Dijkstra
// runner. Changes that originate from bound propagation itself are skipped
// since their consequences were already derived.
func (r *Reasoner) processBoundChanges(doms *state.Domains, cyclic func(core.SignedVar) bool) *state.InvalidUpdate {
	r.dij.clear()
	for _, ev := range r.pendingBoundChanges {
		if ev.fromBoundPropagation {
			continue
		}
		r.dij.addModifiedBound(ev.v, ev.previousUB, ev.newUB)
	}
	r.pendingBoundChanges = r.pendingBoundChanges[:0]
	return r.dij.run(r, doms, cyclic)
}

// minHeap is a priority queue on reduced costs, with decrease-key support
// and the predecessor propagator of each enqueued node.
type minHeap struct {
	items items
	pos   map[core.SignedVar]int
	pred  map[core.SignedVar]PropagatorId
}

type heapEntry struct {
	v    core.SignedVar
	cost int
}

type items struct {
	entries []heapEntry
	pos     map[core.SignedVar]int
}

func (it *items) Len() int           { return len(it.entries) }
func (it *items) Less(i, j int) bool { return it.entries[i].cost < it.entries[j].cost }
func (it *items) Push(x any) {
	e := x.(heapEntry)
	it.pos[e.v] = len(it.entries)
	it.entries = append(it.entries, e)
}
func (it *items) Pop() any {
	last := len(it.entries) - 1
	e := it.entries[last]
	it.entries = it.entries[:last]
	delete(it.pos, e.v)
	return e
}
func (it *items) Swap(i, j int) {
	it.entries[i], it.entries[j] = it.entries[j], it.entries[i]
	it.pos[it.entries[i].v] = i
	it.pos[it.entries[j].v] = j
}

func newMinHeap() minHeap {
	pos := map[core.SignedVar]int{}
	return minHeap{
		items: items{pos: pos},
		pos:   pos,
		pred:  map[core.SignedVar]PropagatorId{},
	}
}

func (h *minHeap) clear() {
	h.items.entries = h.items.entries[:0]
	for v := range h.pos {
		delete(h.pos, v)
	}
	for v := range h.pred {
		delete(h.pred, v)
	}
}

func (h *minHeap) insertInit(v core.SignedVar, cost int) {
	heap.Push(&h.items, heapEntry{v: v, cost: cost})
}

func (h *minHeap) update(v core.SignedVar, cost int, pred PropagatorId) {
	if i, ok := h.pos[v]; ok {
		if h.items.entries[i].cost > cost {
			h.items.entries[i].cost = cost
			h.pred[v] = pred
			heap.Fix(&h.items, i)
		}
		return
	}
	h.pred[v] = pred
	heap.Push(&h.items, heapEntry{v: v, cost: cost})
}

func (h *minHeap) pop() (core.SignedVar, int, bool) {
	if len(h.items.entries) == 0 {
		return 0, 0, false
	}
	e := heap.Pop(&h.items).(heapEntry)
	return e.v, e.cost, true
}
