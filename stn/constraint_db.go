package stn

import (
	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
)

// enablerWatch associates an enabler with the propagator it may activate.
type enablerWatch struct {
	enabler Enabler
	prop    PropagatorId
}

type dbEventKind uint8

const (
	groupAdded dbEventKind = iota
	enablerAdded
)

type dbEvent struct {
	kind    dbEventKind
	prop    PropagatorId
	enabler Enabler
}

type srcTgt struct {
	source core.SignedVar
	target core.SignedVar
}

// constraintDb holds all active and inactive propagators of the network.
// Propagators between the same pair of nodes that only differ by their
// enabler are grouped together, and at the root level a new propagator may
// merge with or tighten an existing group.
type constraintDb struct {
	groups []*propagatorGroup
	// indices of the groups on each pair of nodes
	index map[srcTgt][]PropagatorId
	// watches on the literals whose truth may enable a propagator
	watches *core.Watches[enablerWatch]
	// potential outgoing edges of each node, indexed by SignedVar
	intermittent map[core.SignedVar][]PropagatorTarget
	// index of the next group not yet returned by nextNewConstraint
	nextNew int
	trail   backtrack.Trail[dbEvent]
}

func newConstraintDb() *constraintDb {
	return &constraintDb{
		index:        map[srcTgt][]PropagatorId{},
		watches:      core.NewWatches[enablerWatch](),
		intermittent: map[core.SignedVar][]PropagatorTarget{},
	}
}

func (db *constraintDb) group(id PropagatorId) *propagatorGroup { return db.groups[id] }

func (db *constraintDb) numGroups() int { return len(db.groups) }

// nextNewConstraint acts as a one-time iterator over the groups: it returns
// each group once, in insertion order, across successive calls.
func (db *constraintDb) nextNewConstraint() (PropagatorId, bool) {
	if db.nextNew < len(db.groups) {
		id := PropagatorId(db.nextNew)
		db.nextNew++
		return id, true
	}
	return 0, false
}

// integration describes how a propagator was merged into the database.
type integration uint8

const (
	// a new group was created for the propagator
	integrationCreated integration = iota
	// the enabler was added to an existing group of the same weight
	integrationMerged
	// the propagator superseded a weaker group with the same enabler
	integrationTightened
	// the propagator was redundant and ignored
	integrationNoop
)

// addPropagator inserts a propagator, unifying it with an existing group
// when possible. Unification is only attempted at the root level since it
// would be hard to undo.
func (db *constraintDb) addPropagator(p propagator) (PropagatorId, integration) {
	key := srcTgt{p.source, p.target}
	if db.trail.CurrentLevel() == backtrack.Root {
		for _, id := range db.index[key] {
			existing := db.groups[id]
			switch {
			case existing.weight == p.weight:
				for _, e := range existing.enablers {
					if e == p.enabler {
						return id, integrationNoop
					}
				}
				existing.enablers = append(existing.enablers, p.enabler)
				return id, integrationMerged
			case p.weight < existing.weight:
				// strictly stronger: supersede the group if it has the
				// exact same enabling conditions
				if len(existing.enablers) == 1 && existing.enablers[0] == p.enabler {
					for i := range db.intermittent[p.source] {
						t := &db.intermittent[p.source][i]
						if t.Target == p.target && t.Weight == existing.weight && t.Presence == p.enabler.Active {
							t.Weight = p.weight
							break
						}
					}
					existing.weight = p.weight
					return id, integrationTightened
				}
			default:
				// the existing group is stronger, ours is redundant
				if len(existing.enablers) == 1 && existing.enablers[0] == p.enabler {
					return id, integrationNoop
				}
			}
		}
	}
	g := &propagatorGroup{
		source:   p.source,
		target:   p.target,
		weight:   p.weight,
		enablers: []Enabler{p.enabler},
	}
	db.groups = append(db.groups, g)
	id := PropagatorId(len(db.groups) - 1)
	db.index[key] = append(db.index[key], id)
	db.trail.Push(dbEvent{kind: groupAdded})
	return id, integrationCreated
}

// addPropagatorEnabler records that the propagator should be enabled when
// both literals of the enabler become true, and that if the propagator is
// inconsistent with the network, the active literal should be made false.
func (db *constraintDb) addPropagatorEnabler(id PropagatorId, e Enabler) {
	// watch both literals: on either becoming true, the other is checked
	db.watches.AddWatch(enablerWatch{e, id}, e.Active)
	db.watches.AddWatch(enablerWatch{e, id}, e.Valid)
	g := db.groups[id]
	db.intermittent[g.source] = append(db.intermittent[g.source], PropagatorTarget{
		Target:   g.target,
		Weight:   g.weight,
		Presence: e.Active,
		Id:       id,
	})
	db.trail.Push(dbEvent{kind: enablerAdded, prop: id, enabler: e})
}

// potentialOutEdges returns the inactive outgoing edges of the node.
func (db *constraintDb) potentialOutEdges(source core.SignedVar) []PropagatorTarget {
	return db.intermittent[source]
}

// enabledBy calls f for each (enabler, propagator) that lit may enable.
func (db *constraintDb) enabledBy(lit core.Lit, f func(Enabler, PropagatorId)) {
	db.watches.WatchesOn(lit, func(w enablerWatch) { f(w.enabler, w.prop) })
}

func (db *constraintDb) SaveState() backtrack.DecLvl { return db.trail.SaveState() }

func (db *constraintDb) NumSaved() int { return db.trail.NumSaved() }

func (db *constraintDb) RestoreLast() {
	db.trail.RestoreLastWith(func(e dbEvent) {
		switch e.kind {
		case groupAdded:
			last := len(db.groups) - 1
			g := db.groups[last]
			db.groups = db.groups[:last]
			key := srcTgt{g.source, g.target}
			ids := db.index[key]
			db.index[key] = ids[:len(ids)-1]
			if db.nextNew > len(db.groups) {
				db.nextNew = len(db.groups)
			}
		case enablerAdded:
			db.watches.RemoveWatch(enablerWatch{e.enabler, e.prop}, e.enabler.Active)
			db.watches.RemoveWatch(enablerWatch{e.enabler, e.prop}, e.enabler.Valid)
			g := db.groups[e.prop]
			list := db.intermittent[g.source]
			db.intermittent[g.source] = list[:len(list)-1]
		}
	})
}

func (db *constraintDb) clone() *constraintDb {
	out := &constraintDb{
		groups:       make([]*propagatorGroup, len(db.groups)),
		index:        make(map[srcTgt][]PropagatorId, len(db.index)),
		watches:      db.watches.Clone(),
		intermittent: make(map[core.SignedVar][]PropagatorTarget, len(db.intermittent)),
		nextNew:      db.nextNew,
		trail:        *db.trail.Clone(),
	}
	for i, g := range db.groups {
		cp := *g
		cp.enablers = append([]Enabler(nil), g.enablers...)
		if g.enabler != nil {
			e := *g.enabler
			cp.enabler = &e
		}
		out.groups[i] = &cp
	}
	for k, v := range db.index {
		out.index[k] = append([]PropagatorId(nil), v...)
	}
	for k, v := range db.intermittent {
		out.intermittent[k] = append([]PropagatorTarget(nil), v...)
	}
	return out
}
