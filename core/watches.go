package core

// Watch associates a watcher with the literal it watches.
// The watcher is triggered when the watched literal becomes true.
type Watch[W comparable] struct {
	Watcher W
	guard   UpperBound
}

// Lit rebuilds the watched literal, given the signed variable of the list
// the watch was stored in.
func (w Watch[W]) Lit(sv SignedVar) Lit { return sv.Leq(int(w.guard)) }

// Watches indexes watchers by the literal they watch. A watcher on `x <= k`
// is triggered by any event entailing `x <= k`.
type Watches[W comparable] struct {
	perSvar map[SignedVar][]Watch[W]
}

// NewWatches returns an empty watch index.
func NewWatches[W comparable]() *Watches[W] {
	return &Watches[W]{perSvar: map[SignedVar][]Watch[W]{}}
}

// Clone returns an independent deep copy of the index.
func (ws *Watches[W]) Clone() *Watches[W] {
	out := NewWatches[W]()
	for sv, list := range ws.perSvar {
		out.perSvar[sv] = append([]Watch[W](nil), list...)
	}
	return out
}

// AddWatch records that watcher should be triggered when lit becomes true.
func (ws *Watches[W]) AddWatch(watcher W, lit Lit) {
	ws.perSvar[lit.Svar()] = append(ws.perSvar[lit.Svar()], Watch[W]{Watcher: watcher, guard: lit.Bound()})
}

// RemoveWatch removes one watch of watcher on lit, if any.
func (ws *Watches[W]) RemoveWatch(watcher W, lit Lit) {
	list := ws.perSvar[lit.Svar()]
	for i, w := range list {
		if w.Watcher == watcher && w.guard == lit.Bound() {
			list[i] = list[len(list)-1]
			ws.perSvar[lit.Svar()] = list[:len(list)-1]
			return
		}
	}
}

// RemoveWatchesOf removes every watch of watcher stored on the list of sv.
func (ws *Watches[W]) RemoveWatchesOf(watcher W, sv SignedVar) {
	list := ws.perSvar[sv]
	kept := list[:0]
	for _, w := range list {
		if w.Watcher != watcher {
			kept = append(kept, w)
		}
	}
	ws.perSvar[sv] = kept
}

// IsWatchedBy returns true if watcher has a watch triggered by lit.
func (ws *Watches[W]) IsWatchedBy(lit Lit, watcher W) bool {
	for _, w := range ws.perSvar[lit.Svar()] {
		if w.Watcher == watcher && lit.Bound().Stronger(w.guard) {
			return true
		}
	}
	return false
}

// WatchesOn calls f for each watcher triggered by lit becoming true.
func (ws *Watches[W]) WatchesOn(lit Lit, f func(W)) {
	for _, w := range ws.perSvar[lit.Svar()] {
		if lit.Bound().Stronger(w.guard) {
			f(w.Watcher)
		}
	}
}

// MoveWatchesTo removes all watches that may be triggered by lit and appends
// them to out. Watches that turn out not to be triggered must be re-added by
// the caller.
func (ws *Watches[W]) MoveWatchesTo(lit Lit, out *[]Watch[W]) {
	list := ws.perSvar[lit.Svar()]
	kept := list[:0]
	for _, w := range list {
		if lit.Bound().Stronger(w.guard) {
			*out = append(*out, w)
		} else {
			kept = append(kept, w)
		}
	}
	ws.perSvar[lit.Svar()] = kept
}
