package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLitNegation(t *testing.T) {
	a := VarRef(1)
	lits := []Lit{Leq(a, 5), Lt(a, 5), Geq(a, 5), Gt(a, 5), LitTrue, LitFalse}
	for _, l := range lits {
		assert.Equal(t, l, l.Not().Not())
		assert.NotEqual(t, l, l.Not())
	}
	assert.Equal(t, Geq(a, 6), Leq(a, 5).Not())
	assert.Equal(t, Leq(a, 4), Geq(a, 5).Not())
	assert.Equal(t, LitFalse, LitTrue.Not())
}

func TestLitEntailment(t *testing.T) {
	a := VarRef(1)
	b := VarRef(2)
	assert.True(t, Leq(a, 4).Entails(Leq(a, 5)))
	assert.True(t, Leq(a, 5).Entails(Leq(a, 5)))
	assert.False(t, Leq(a, 6).Entails(Leq(a, 5)))
	assert.True(t, Geq(a, 6).Entails(Geq(a, 5)))
	assert.False(t, Geq(a, 4).Entails(Geq(a, 5)))
	// entailment is only defined on the same bound of the same variable
	assert.False(t, Leq(a, 4).Entails(Leq(b, 5)))
	assert.False(t, Leq(a, 4).Entails(Geq(a, 3)))
}

func TestDisjunctionSimplification(t *testing.T) {
	a := VarRef(1)
	b := VarRef(2)

	d := Clause(Leq(a, 3), Leq(a, 5), Geq(b, 2))
	require.Equal(t, 2, d.Len())
	assert.True(t, d.Contains(Leq(a, 5)))
	assert.True(t, d.Contains(Geq(b, 2)))
	assert.False(t, d.Contains(Leq(a, 3)))

	d = Clause(Geq(a, 4), Geq(a, 2))
	require.Equal(t, 1, d.Len())
	assert.True(t, d.Contains(Geq(a, 2)))
}

func TestDisjunctionTautology(t *testing.T) {
	a := VarRef(1)
	b := VarRef(2)

	assert.True(t, Clause(Leq(a, 5), Geq(a, 6)).IsTautology())
	assert.True(t, Clause(Leq(a, 5), Geq(a, 5)).IsTautology())
	assert.True(t, Clause(Leq(a, 5), Geq(a, 2)).IsTautology())
	assert.False(t, Clause(Leq(a, 5), Geq(a, 7)).IsTautology())
	assert.False(t, Clause(Leq(a, 5), Geq(b, 2)).IsTautology())
}

func TestLitSet(t *testing.T) {
	a := VarRef(1)
	s := NewLitSet()
	s.Insert(Leq(a, 5))
	assert.True(t, s.Entails(Leq(a, 5)))
	assert.True(t, s.Entails(Leq(a, 7)))
	assert.False(t, s.Entails(Leq(a, 4)))
	assert.False(t, s.Entails(Geq(a, 2)))
	s.Insert(Leq(a, 3))
	assert.True(t, s.Entails(Leq(a, 4)))
	assert.Equal(t, 1, s.Len())
}

func TestWatches(t *testing.T) {
	a := VarRef(1)
	ws := NewWatches[int]()
	ws.AddWatch(1, Leq(a, 5))
	ws.AddWatch(2, Leq(a, 3))
	ws.AddWatch(3, Geq(a, 4))

	var triggered []int
	ws.WatchesOn(Leq(a, 4), func(w int) { triggered = append(triggered, w) })
	assert.ElementsMatch(t, []int{1}, triggered)

	triggered = nil
	ws.WatchesOn(Leq(a, 2), func(w int) { triggered = append(triggered, w) })
	assert.ElementsMatch(t, []int{1, 2}, triggered)

	ws.RemoveWatch(1, Leq(a, 5))
	triggered = nil
	ws.WatchesOn(Leq(a, 2), func(w int) { triggered = append(triggered, w) })
	assert.ElementsMatch(t, []int{2}, triggered)

	var moved []Watch[int]
	ws.MoveWatchesTo(Geq(a, 5), &moved)
	require.Len(t, moved, 1)
	assert.Equal(t, 3, moved[0].Watcher)
	assert.Equal(t, Geq(a, 4), moved[0].Lit(Minus(a)))
}
