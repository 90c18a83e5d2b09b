package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plaans/aries-sub004/core"
)

func TestReifyInterning(t *testing.T) {
	m := New()
	a := m.NewIntVar(0, 10, "a")
	b := m.NewIntVar(0, 10, "b")

	l1 := m.Reify(Leq(a, b))
	l2 := m.Reify(Leq(a, b))
	require.Equal(t, l1, l2)

	// the negated form shares the reification literal
	l3 := m.Reify(MaxDiff(a, b, -1)) // b - a <= -1, i.e. not(a <= b)
	require.Equal(t, l1.Not(), l3)
}

func TestReifyLiteralExpr(t *testing.T) {
	m := New()
	x := m.NewBoolVar("x")
	require.Equal(t, x, m.Reify(Lit(x)))
	require.Equal(t, x, m.Reify(Or(x)))
	require.Equal(t, x.Not(), m.Reify(And(x.Not())))
}

func TestReifyTautologyAndEmpty(t *testing.T) {
	m := New()
	x := m.NewBoolVar("x")
	require.Equal(t, core.LitTrue, m.Reify(Or(x, x.Not())))
	require.Equal(t, core.LitFalse, m.Reify(Or()))
}

func TestEnforceRecordsHalfBinding(t *testing.T) {
	m := New()
	x := m.NewBoolVar("x")
	y := m.NewBoolVar("y")
	m.Enforce(Or(x, y))

	bs := m.Bindings()
	require.Len(t, bs, 1)
	require.True(t, bs[0].Half)
	require.Equal(t, core.LitTrue, bs[0].Lit)
	require.Equal(t, ExprOr, bs[0].Expr.Kind)
}

func TestConjunctiveScope(t *testing.T) {
	m := New()
	pa := m.NewPresenceVar(core.LitTrue, "pa")
	pb := m.NewPresenceVar(core.LitTrue, "pb")
	a := m.NewOptionalIntVar(0, 10, pa, "a")
	b := m.NewOptionalIntVar(0, 10, pb, "b")

	l := m.Reify(Leq(a, b))
	scope := m.State.PresenceOf(l.Variable())
	require.NotEqual(t, core.LitTrue, scope)
	require.NotEqual(t, pa, scope)
	require.NotEqual(t, pb, scope)
	require.True(t, m.State.Implies(scope, pa))
	require.True(t, m.State.Implies(scope, pb))

	// the same pair of presences reuses the scope literal
	l2 := m.Reify(Lt(a, b))
	require.Equal(t, scope, m.State.PresenceOf(l2.Variable()))
}

func TestScopeOfSinglePresence(t *testing.T) {
	m := New()
	p := m.NewPresenceVar(core.LitTrue, "p")
	a := m.NewOptionalIntVar(0, 5, p, "a")
	b := m.NewOptionalIntVar(0, 5, p, "b")

	l := m.Reify(Leq(a, b))
	require.Equal(t, p, m.State.PresenceOf(l.Variable()))
}

func TestTautologyIn(t *testing.T) {
	m := New()
	require.Equal(t, core.LitTrue, m.TautologyIn(core.LitTrue))

	p := m.NewPresenceVar(core.LitTrue, "p")
	taut := m.TautologyIn(p)
	require.Equal(t, taut, m.TautologyIn(p))
	require.Equal(t, p, m.State.PresenceOf(taut.Variable()))
	require.True(t, m.State.Entails(taut))
}

func TestEnforceOnOptionalVarsIsGuarded(t *testing.T) {
	m := New()
	p := m.NewPresenceVar(core.LitTrue, "p")
	a := m.NewOptionalIntVar(0, 5, p, "a")
	b := m.NewOptionalIntVar(0, 5, p, "b")
	m.Enforce(Lt(a, b))

	bs := m.Bindings()
	require.Len(t, bs, 1)
	require.True(t, bs[0].Half)
	require.Equal(t, p, m.State.PresenceOf(bs[0].Lit.Variable()))
}

func TestBindReusesExistingReification(t *testing.T) {
	m := New()
	a := m.NewIntVar(0, 10, "a")
	b := m.NewIntVar(0, 10, "b")
	x := m.NewBoolVar("x")

	l := m.Reify(Leq(a, b))
	n := len(m.Bindings())
	m.Bind(Leq(a, b), x)
	// two half bindings tying x and l together
	require.Len(t, m.Bindings(), n+2)
	for _, bnd := range m.Bindings()[n:] {
		require.True(t, bnd.Half)
		require.Equal(t, ExprLit, bnd.Expr.Kind)
	}
	_ = l
}

func TestLabels(t *testing.T) {
	m := New()
	a := m.NewIntVar(0, 1, "a")
	b := m.NewIntVar(0, 1, "")
	require.Equal(t, "a", m.Label(a))
	require.Equal(t, b.String(), m.Label(b))
}

func TestClone(t *testing.T) {
	m := New()
	a := m.NewIntVar(0, 10, "a")
	b := m.NewIntVar(0, 10, "b")
	m.Enforce(Leq(a, b))

	c := m.Clone()
	require.Len(t, c.Bindings(), len(m.Bindings()))
	c.Enforce(Lt(b, a))
	require.Len(t, m.Bindings(), 1)
	require.Equal(t, "a", c.Label(a))
}
