package state

import (
	"github.com/plaans/aries-sub004/core"
)

// ImplicationGraph records implications between literals on non-optional
// variables. Adding `a => b` also records the contrapositive `!b => !a`.
// The graph only grows and is never backtracked: implications may only be
// added at the root level.
type ImplicationGraph struct {
	edges *core.Watches[core.Lit]
}

// NewImplicationGraph returns an empty graph.
func NewImplicationGraph() ImplicationGraph {
	return ImplicationGraph{edges: core.NewWatches[core.Lit]()}
}

// Clone returns an independent deep copy of the graph.
func (g ImplicationGraph) Clone() ImplicationGraph {
	return ImplicationGraph{edges: g.edges.Clone()}
}

// Add records the implication `from => to` and its contrapositive.
func (g *ImplicationGraph) Add(from, to core.Lit) {
	g.edges.AddWatch(to, from)
	g.edges.AddWatch(from.Not(), to.Not())
}

// DirectImplicationsOf calls f on each literal directly implied by lit.
func (g *ImplicationGraph) DirectImplicationsOf(lit core.Lit, f func(core.Lit)) {
	g.edges.WatchesOn(lit, f)
}

// Implies returns true if `from => to` follows from the recorded edges,
// by reachability.
func (g *ImplicationGraph) Implies(from, to core.Lit) bool {
	if from.Entails(to) || to == core.LitTrue || from == core.LitFalse {
		return true
	}
	// breadth first traversal of the implication edges
	visited := core.NewLitSet()
	queue := []core.Lit{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.Entails(to) {
			return true
		}
		if visited.Entails(cur) {
			continue
		}
		visited.Insert(cur)
		g.edges.WatchesOn(cur, func(next core.Lit) {
			if !visited.Entails(next) {
				queue = append(queue, next)
			}
		})
	}
	return false
}
