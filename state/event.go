package state

import (
	"fmt"

	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
)

// ValueCause is the current bound of a signed variable together with the
// index of the event that set it, NoEvent if the bound is the initial one.
type ValueCause struct {
	Value core.UpperBound
	Cause backtrack.EventIndex
}

// Event records a change of the bound of a signed variable. Events of a
// given signed variable form a linked list through Previous.Cause, which
// allows walking the history of the bound.
type Event struct {
	Affected core.SignedVar
	Previous ValueCause
	NewValue core.UpperBound
	Cause    Origin
}

// NewLiteral returns the literal that the event made true.
func (e Event) NewLiteral() core.Lit {
	return e.Affected.Leq(int(e.NewValue))
}

// MakesTrue returns true if the event is the one that made lit true:
// the new value entails it while the previous one did not.
func (e Event) MakesTrue(lit core.Lit) bool {
	return e.Affected == lit.Svar() &&
		e.NewValue.Stronger(lit.Bound()) &&
		!e.Previous.Value.Stronger(lit.Bound())
}

func (e Event) String() string {
	return fmt.Sprintf("%s (prev: %d)", e.NewLiteral(), int(e.Previous.Value))
}
