package solver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/model"
	"github.com/plaans/aries-sub004/state"
)

func newTestSolver(m *model.Model) *Solver {
	return NewWithConf(m, DefaultConf(), discardLogger())
}

func TestPureSatUnsat(t *testing.T) {
	m := model.New()
	a := m.NewBoolVar("a")
	b := m.NewBoolVar("b")
	m.Enforce(model.Lit(a))
	m.Enforce(model.Or(a.Not(), b))
	m.Enforce(model.Lit(b.Not()))

	s := newTestSolver(m)
	res, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestPureSatSat(t *testing.T) {
	m := model.New()
	a := m.NewBoolVar("a")
	b := m.NewBoolVar("b")
	c := m.NewBoolVar("c")
	m.Enforce(model.Or(a, b))
	m.Enforce(model.Or(a.Not(), c))
	m.Enforce(model.Or(b.Not(), c))

	s := newTestSolver(m)
	res, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	av, _ := res.Value(a)
	bv, _ := res.Value(b)
	require.True(t, av || bv)
	cv, known := res.Value(c)
	require.True(t, known)
	require.True(t, cv)
}

func TestDifferenceLogicCycleUnsat(t *testing.T) {
	m := model.New()
	a := m.NewIntVar(0, 10, "a")
	b := m.NewIntVar(0, 10, "b")
	c := m.NewIntVar(0, 10, "c")
	m.Enforce(model.Lt(a, b))
	m.Enforce(model.Lt(b, c))
	m.Enforce(model.Lt(c, a))

	s := newTestSolver(m)
	res, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestDifferenceLogicChainSat(t *testing.T) {
	m := model.New()
	a := m.NewIntVar(0, 10, "a")
	b := m.NewIntVar(0, 10, "b")
	c := m.NewIntVar(0, 10, "c")
	m.Enforce(model.Lt(a, b))
	m.Enforce(model.Lt(b, c))

	s := newTestSolver(m)
	res, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	va, _ := res.ValueOf(a)
	vb, _ := res.ValueOf(b)
	vc, _ := res.ValueOf(c)
	require.Less(t, va, vb)
	require.Less(t, vb, vc)
}

func TestMinimize(t *testing.T) {
	m := model.New()
	a := m.NewIntVar(0, 10, "a")
	b := m.NewIntVar(0, 10, "b")
	c := m.NewIntVar(0, 10, "c")
	m.Enforce(model.Lt(a, b))
	m.Enforce(model.Lt(b, c))
	m.Enforce(model.Lt(a, c))
	m.Enforce(model.Or(core.Geq(b, 6), core.Geq(b, 8)))

	s := newTestSolver(m)
	value, res, err := s.Minimize(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 7, value)
	vb, _ := res.ValueOf(b)
	va, _ := res.ValueOf(a)
	require.Equal(t, 6, vb)
	require.Less(t, va, 6)
}

func TestMinimizeWithReportsImprovements(t *testing.T) {
	m := model.New()
	a := m.NewIntVar(0, 10, "a")
	b := m.NewIntVar(0, 10, "b")
	m.Enforce(model.Lt(a, b))

	s := newTestSolver(m)
	var seen []int
	value, res, err := s.MinimizeWith(context.Background(), b, func(v int, _ *Assignment) {
		seen = append(seen, v)
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 1, value)
	require.NotEmpty(t, seen)
	require.Equal(t, 1, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i], seen[i-1])
	}
}

func TestMaximize(t *testing.T) {
	m := model.New()
	a := m.NewIntVar(0, 10, "a")
	b := m.NewIntVar(0, 5, "b")
	m.Enforce(model.Lt(a, b))

	s := newTestSolver(m)
	value, res, err := s.Maximize(context.Background(), a)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 4, value)
}

func TestBoundNormalization(t *testing.T) {
	m := model.New()
	var vars []core.VarRef
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		vars = append(vars, m.NewIntVar(0, 10, name))
	}
	lower := []core.Lit{
		core.Geq(vars[0], 2), core.Gt(vars[1], 1),
		core.Leq(vars[2], 1).Not(), core.Lt(vars[3], 2).Not(),
		core.Geq(vars[4], 2), core.Gt(vars[5], 1),
		core.Leq(vars[6], 1).Not(), core.Lt(vars[7], 2).Not(),
	}
	upper := []core.Lit{
		core.Leq(vars[0], 8), core.Lt(vars[1], 9),
		core.Geq(vars[2], 9).Not(), core.Gt(vars[3], 8).Not(),
		core.Gt(vars[4], 8).Not(), core.Geq(vars[5], 9).Not(),
		core.Lt(vars[6], 9), core.Leq(vars[7], 8),
	}
	for i := range vars {
		m.Enforce(model.Lit(lower[i]))
		m.Enforce(model.Lit(upper[i]))
	}

	s := newTestSolver(m)
	s.postPending()
	consistent, _ := s.PropagateAndBacktrackToConsistent()
	require.True(t, consistent)
	for _, v := range vars {
		lb, ub := s.doms.Bounds(v)
		require.Equal(t, 2, lb, "lb of %s", m.Label(v))
		require.Equal(t, 8, ub, "ub of %s", m.Label(v))
	}
}

func optEq(m *model.Model, a, b core.VarRef) {
	m.Enforce(model.Leq(a, b))
	m.Enforce(model.Leq(b, a))
}

func TestOptionalHierarchy(t *testing.T) {
	m := model.New()
	p := m.NewPresenceVar(core.LitTrue, "p")
	i := m.NewOptionalIntVar(-10, 10, p, "i")
	p0 := m.NewPresenceVar(p, "p0")
	p1 := m.NewPresenceVar(p, "p1")
	p2 := m.NewPresenceVar(p, "p2")
	sub0 := m.NewOptionalIntVar(0, 8, p0, "sub0")
	sub1 := m.NewOptionalIntVar(-20, -5, p1, "sub1")
	sub2 := m.NewOptionalIntVar(5, 20, p2, "sub2")
	optEq(m, i, sub0)
	optEq(m, i, sub1)
	optEq(m, i, sub2)
	m.Enforce(model.Lit(core.Leq(i, 4)))

	s := newTestSolver(m)
	s.postPending()
	consistent, _ := s.PropagateAndBacktrackToConsistent()
	require.True(t, consistent)

	lb, ub := s.doms.Bounds(i)
	require.Equal(t, -10, lb)
	require.Equal(t, 4, ub)
	// sub2 needs a value >= 5, impossible under joint presence
	require.True(t, s.doms.Entails(p2.Not()))
	_, known := s.doms.Present(i)
	require.False(t, known)

	// deciding p makes i present without touching its domain
	s.SaveState()
	_, fail := s.doms.Set(p, state.Decision)
	require.Nil(t, fail)
	consistent, _ = s.PropagateAndBacktrackToConsistent()
	require.True(t, consistent)
	present, known := s.doms.Present(i)
	require.True(t, known)
	require.True(t, present)
	lb, ub = s.doms.Bounds(i)
	require.Equal(t, -10, lb)
	require.Equal(t, 4, ub)

	res, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestAssumptionCore(t *testing.T) {
	m := model.New()
	a := m.NewBoolVar("a")
	b := m.NewBoolVar("b")
	c := m.NewBoolVar("c")
	m.Enforce(model.Or(a, b))
	m.Enforce(model.Or(a.Not(), c))
	m.Enforce(model.Or(b.Not(), c))
	m.Enforce(model.Lit(c.Not()))

	s := newTestSolver(m)
	_, err := s.SolveWithAssumptions(context.Background(), []core.Lit{a, b})
	require.Error(t, err)
	var coreErr *UnsatCoreError
	require.True(t, errors.As(err, &coreErr))
	require.NotEmpty(t, coreErr.Core.Lits)
	for _, l := range coreErr.Core.Lits {
		require.Contains(t, []core.Lit{a, b}, l)
	}
}

func TestAssumptionsSatisfiable(t *testing.T) {
	m := model.New()
	a := m.NewBoolVar("a")
	b := m.NewBoolVar("b")
	m.Enforce(model.Or(a, b))

	s := newTestSolver(m)
	res, err := s.SolveWithAssumptions(context.Background(), []core.Lit{a.Not()})
	require.NoError(t, err)
	require.NotNil(t, res)
	bv, known := res.Value(b)
	require.True(t, known)
	require.True(t, bv)
}

func TestContradictoryBoundsMandatoryUnsat(t *testing.T) {
	m := model.New()
	x := m.NewIntVar(0, 10, "x")
	y := m.NewIntVar(0, 10, "y")
	m.Enforce(model.Leq(x, y))
	m.Enforce(model.MaxDiff(x, y, -1)) // y - x <= -1, i.e. y < x

	s := newTestSolver(m)
	res, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestContradictoryBoundsOptionalStaysSat(t *testing.T) {
	m := model.New()
	px := m.NewPresenceVar(core.LitTrue, "px")
	py := m.NewPresenceVar(core.LitTrue, "py")
	x := m.NewOptionalIntVar(0, 10, px, "x")
	y := m.NewOptionalIntVar(0, 10, py, "y")
	m.Enforce(model.Leq(x, y))
	m.Enforce(model.MaxDiff(x, y, -1))

	s := newTestSolver(m)
	res, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	xPresent, _ := res.Value(px)
	yPresent, _ := res.Value(py)
	require.False(t, xPresent && yPresent)
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	m := model.New()
	x := m.NewIntVar(0, 10, "x")
	y := m.NewIntVar(0, 10, "y")
	m.Enforce(model.Leq(x, y))

	s := newTestSolver(m)
	s.postPending()
	consistent, _ := s.PropagateAndBacktrackToConsistent()
	require.True(t, consistent)

	lb0, ub0 := s.doms.Bounds(x)
	s.SaveState()
	_, fail := s.doms.Set(core.Leq(x, 3), state.Decision)
	require.Nil(t, fail)
	consistent, _ = s.PropagateAndBacktrackToConsistent()
	require.True(t, consistent)
	s.RestoreLast()

	lb1, ub1 := s.doms.Bounds(x)
	require.Equal(t, lb0, lb1)
	require.Equal(t, ub0, ub1)
}

func TestEnumerate(t *testing.T) {
	m := model.New()
	x := m.NewIntVar(0, 2, "x")

	s := newTestSolver(m)
	seen := map[int]bool{}
	err := s.Enumerate(context.Background(), func(a *Assignment) bool {
		v, ok := a.ValueOf(x)
		require.True(t, ok)
		require.False(t, seen[v])
		seen[v] = true
		return true
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)
}

// three pigeons in two holes, forcing several conflicts
func pigeonHoleModel() *model.Model {
	m := model.New()
	var in [3][2]core.Lit
	for p := 0; p < 3; p++ {
		for h := 0; h < 2; h++ {
			in[p][h] = m.NewBoolVar("")
		}
		m.Enforce(model.Or(in[p][0], in[p][1]))
	}
	for h := 0; h < 2; h++ {
		for p1 := 0; p1 < 3; p1++ {
			for p2 := p1 + 1; p2 < 3; p2++ {
				m.Enforce(model.Or(in[p1][h].Not(), in[p2][h].Not()))
			}
		}
	}
	return m
}

func TestRestartsOnTightBudget(t *testing.T) {
	conf := DefaultConf()
	conf.InitiallyAllowedConflicts = 1
	conf.IncreaseRatioForAllowedConflicts = 1.0
	s := NewWithConf(pigeonHoleModel(), conf, discardLogger())
	res, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.Nil(t, res)
	require.NotZero(t, s.Stats().Conflicts)
}

func TestCancellation(t *testing.T) {
	s := newTestSolver(pigeonHoleModel())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Solve(ctx)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestParSolverSat(t *testing.T) {
	m := model.New()
	a := m.NewIntVar(0, 10, "a")
	b := m.NewIntVar(0, 10, "b")
	c := m.NewIntVar(0, 10, "c")
	m.Enforce(model.Lt(a, b))
	m.Enforce(model.Lt(b, c))

	p := NewParSolver(newTestSolver(m), 4)
	res, err := p.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	va, _ := res.ValueOf(a)
	vb, _ := res.ValueOf(b)
	vc, _ := res.ValueOf(c)
	require.Less(t, va, vb)
	require.Less(t, vb, vc)
}

func TestParSolverUnsat(t *testing.T) {
	p := NewParSolver(newTestSolver(pigeonHoleModel()), 3)
	res, err := p.Solve(context.Background())
	require.NoError(t, err)
	require.Nil(t, res)
	require.Len(t, p.Stats(), 3)
}

func TestReifiedDifferenceDecides(t *testing.T) {
	m := model.New()
	a := m.NewIntVar(0, 10, "a")
	b := m.NewIntVar(0, 10, "b")
	before := m.Reify(model.Lt(a, b))
	after := m.Reify(model.Leq(b, a))
	// the two orderings are each other's negation
	require.Equal(t, before.Not(), after)
	m.Enforce(model.Lit(core.Geq(a, 5)))
	m.Enforce(model.Lit(core.Leq(b, 6)))
	m.Enforce(model.Lit(before))

	s := newTestSolver(m)
	res, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	va, _ := res.ValueOf(a)
	vb, _ := res.ValueOf(b)
	require.Equal(t, 5, va)
	require.Equal(t, 6, vb)
}
