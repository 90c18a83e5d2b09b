package backtrack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrailSaveRestore(t *testing.T) {
	var tr Trail[int]
	tr.Push(1)
	tr.Push(2)
	assert.Equal(t, Root, tr.CurrentLevel())

	assert.Equal(t, DecLvl(1), tr.SaveState())
	tr.Push(3)
	tr.Push(4)
	assert.Equal(t, DecLvl(2), tr.SaveState())
	tr.Push(5)

	assert.Equal(t, DecLvl(0), tr.DecisionLevel(0))
	assert.Equal(t, DecLvl(1), tr.DecisionLevel(2))
	assert.Equal(t, DecLvl(2), tr.DecisionLevel(4))
	assert.Equal(t, ClassRoot, tr.Class(1))
	assert.Equal(t, ClassIntermediate, tr.Class(3))
	assert.Equal(t, ClassCurrent, tr.Class(4))

	var undone []int
	tr.RestoreLastWith(func(e int) { undone = append(undone, e) })
	assert.Equal(t, []int{5}, undone)
	assert.Equal(t, DecLvl(1), tr.CurrentLevel())

	undone = nil
	tr.RestoreLastWith(func(e int) { undone = append(undone, e) })
	assert.Equal(t, []int{4, 3}, undone)
	assert.Equal(t, 2, tr.Len())

	// root events are not removable
	undone = nil
	tr.RestoreLastWith(func(e int) { undone = append(undone, e) })
	assert.Empty(t, undone)
	assert.Equal(t, 2, tr.Len())
}

func TestTrailPopRespectsLevel(t *testing.T) {
	var tr Trail[int]
	tr.Push(1)
	tr.SaveState()
	tr.Push(2)
	tr.Push(3)

	e, ok := tr.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, e)
	e, ok = tr.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, e)
	_, ok = tr.Pop()
	assert.False(t, ok)
}

func TestCursor(t *testing.T) {
	var tr Trail[int]
	var c Cursor[int]
	tr.Push(1)
	tr.Push(2)
	assert.Equal(t, 2, c.NumPending(&tr))

	e, ok := c.Pop(&tr)
	require.True(t, ok)
	assert.Equal(t, 1, e)

	tr.SaveState()
	tr.Push(3)
	e, ok = c.Pop(&tr)
	require.True(t, ok)
	assert.Equal(t, 2, e)
	e, ok = c.Pop(&tr)
	require.True(t, ok)
	assert.Equal(t, 3, e)
	_, ok = c.Pop(&tr)
	assert.False(t, ok)

	// backtracking discards unread events
	tr.Push(4)
	tr.RestoreLastWith(func(int) {})
	assert.Equal(t, 0, c.NumPending(&tr))
	_, ok = c.Pop(&tr)
	assert.False(t, ok)
}
