// Package backtrack provides the trailing infrastructure used by the solver
// and its reasoners to record their changes and undo them chronologically.
package backtrack

// DecLvl is a decision level. Level 0 is the root: everything set there
// is never undone.
type DecLvl int

// Root is the decision level before any backtrack point is set.
const Root DecLvl = 0

// EventIndex is the position of an event in a trail.
type EventIndex int

// NoEvent marks the absence of an event.
const NoEvent EventIndex = -1

// LevelClass situates an event index relative to the current decision level.
type LevelClass uint8

const (
	// ClassRoot is for events set before the first backtrack point.
	ClassRoot LevelClass = iota
	// ClassCurrent is for events of the current decision level.
	ClassCurrent
	// ClassIntermediate is for events in between.
	ClassIntermediate
)

// Trail is a backtrackable log of events. Saving a state records a backtrack
// point; restoring pops all events pushed since the last one.
type Trail[E any] struct {
	events []E
	// start index in events of each saved level
	points []int
}

// Push appends an event and returns its index.
func (t *Trail[E]) Push(e E) EventIndex {
	t.events = append(t.events, e)
	return EventIndex(len(t.events) - 1)
}

// NextSlot returns the index that the next pushed event will receive.
func (t *Trail[E]) NextSlot() EventIndex { return EventIndex(len(t.events)) }

// Len returns the number of events currently on the trail.
func (t *Trail[E]) Len() int { return len(t.events) }

// Get returns the event at the given index.
func (t *Trail[E]) Get(i EventIndex) E { return t.events[i] }

// PeekLast returns the latest event, or false if the trail is empty.
func (t *Trail[E]) PeekLast() (E, bool) {
	var zero E
	if len(t.events) == 0 {
		return zero, false
	}
	return t.events[len(t.events)-1], true
}

// Pop removes and returns the latest event. It must not remove events from
// a level below the current one.
func (t *Trail[E]) Pop() (E, bool) {
	var zero E
	if len(t.events) == 0 {
		return zero, false
	}
	if len(t.points) > 0 && len(t.events) <= t.points[len(t.points)-1] {
		return zero, false
	}
	e := t.events[len(t.events)-1]
	t.events = t.events[:len(t.events)-1]
	return e, true
}

// SaveState records a backtrack point and returns the new decision level.
func (t *Trail[E]) SaveState() DecLvl {
	t.points = append(t.points, len(t.events))
	return DecLvl(len(t.points))
}

// NumSaved returns the number of backtrack points currently recorded.
func (t *Trail[E]) NumSaved() int { return len(t.points) }

// CurrentLevel returns the current decision level.
func (t *Trail[E]) CurrentLevel() DecLvl { return DecLvl(len(t.points)) }

// RestoreLastWith pops all events pushed since the last backtrack point,
// calling undo on each in reverse chronological order.
func (t *Trail[E]) RestoreLastWith(undo func(E)) {
	if len(t.points) == 0 {
		return
	}
	point := t.points[len(t.points)-1]
	t.points = t.points[:len(t.points)-1]
	for i := len(t.events) - 1; i >= point; i-- {
		undo(t.events[i])
	}
	t.events = t.events[:point]
}

// Clone returns an independent deep copy of the trail.
func (t *Trail[E]) Clone() *Trail[E] {
	return &Trail[E]{
		events: append([]E(nil), t.events...),
		points: append([]int(nil), t.points...),
	}
}

// DecisionLevel returns the level at which the event at index i was pushed.
func (t *Trail[E]) DecisionLevel(i EventIndex) DecLvl {
	// points is sorted: the level is the number of backtrack points
	// set before the event
	lo, hi := 0, len(t.points)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.points[mid] <= int(i) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return DecLvl(lo)
}

// Class situates the event at index i relative to the current level.
func (t *Trail[E]) Class(i EventIndex) LevelClass {
	lvl := t.DecisionLevel(i)
	switch {
	case lvl == Root:
		return ClassRoot
	case lvl == t.CurrentLevel():
		return ClassCurrent
	default:
		return ClassIntermediate
	}
}

// Cursor is a reader over a trail, remembering how many events it has
// processed. It is resilient to backtracking: events popped from the trail
// are silently forgotten.
type Cursor[E any] struct {
	next int
}

func (c *Cursor[E]) sync(t *Trail[E]) {
	if c.next > len(t.events) {
		c.next = len(t.events)
	}
}

// NumPending returns the number of unread events on the trail.
func (c *Cursor[E]) NumPending(t *Trail[E]) int {
	c.sync(t)
	return len(t.events) - c.next
}

// Pop returns the next unread event, or false if all events were read.
func (c *Cursor[E]) Pop(t *Trail[E]) (E, bool) {
	c.sync(t)
	var zero E
	if c.next == len(t.events) {
		return zero, false
	}
	e := t.events[c.next]
	c.next++
	return e, true
}

// Backtrackable is implemented by every component whose state follows the
// decision level of the solver.
type Backtrackable interface {
	// SaveState records a backtrack point and returns the new level.
	SaveState() DecLvl
	// NumSaved returns the number of backtrack points currently recorded.
	NumSaved() int
	// RestoreLast undoes all changes since the last backtrack point.
	RestoreLast()
}
