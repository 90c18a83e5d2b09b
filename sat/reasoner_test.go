package sat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/state"
)

func newBool(d *state.Domains) core.VarRef { return d.NewVar(0, 1) }

func isTrue(v core.VarRef) core.Lit  { return core.Geq(v, 1) }
func isFalse(v core.VarRef) core.Lit { return core.Leq(v, 0) }

func decide(t *testing.T, d *state.Domains, l core.Lit) {
	t.Helper()
	d.SaveState()
	changed, fail := d.Set(l, state.Decision)
	require.Nil(t, fail)
	require.True(t, changed)
}

func TestUnitPropagation(t *testing.T) {
	d := state.NewDomains()
	r := NewReasoner(DefaultParams(), nil)
	a, b := newBool(d), newBool(d)

	r.AddClause(core.Clause(isTrue(a), isTrue(b)))
	require.Nil(t, r.Propagate(d))
	_, known := d.Value(isTrue(b))
	require.False(t, known)

	decide(t, d, isFalse(a))
	require.Nil(t, r.Propagate(d))
	require.True(t, d.Entails(isTrue(b)))
}

func TestSingletonClause(t *testing.T) {
	d := state.NewDomains()
	r := NewReasoner(DefaultParams(), nil)
	a := newBool(d)

	r.AddClause(core.Clause(isTrue(a)))
	require.Nil(t, r.Propagate(d))
	require.True(t, d.Entails(isTrue(a)))
}

func TestConflictReportsViolatedClause(t *testing.T) {
	d := state.NewDomains()
	r := NewReasoner(DefaultParams(), nil)
	a, b := newBool(d), newBool(d)

	decide(t, d, isFalse(a))
	decide(t, d, isFalse(b))
	r.AddClause(core.Clause(isTrue(a), isTrue(b)))
	conflict := r.Propagate(d)
	require.NotNil(t, conflict)
	expl := conflict.Expl
	require.ElementsMatch(t, []core.Lit{isFalse(a), isFalse(b)}, expl.Lits)
}

func TestConflictOnPropagatedEvents(t *testing.T) {
	d := state.NewDomains()
	r := NewReasoner(DefaultParams(), nil)
	a, b, c := newBool(d), newBool(d), newBool(d)

	r.AddClause(core.Clause(isTrue(a), isTrue(b), isTrue(c)))
	require.Nil(t, r.Propagate(d))

	decide(t, d, isFalse(a))
	require.Nil(t, r.Propagate(d))
	decide(t, d, isFalse(b))
	require.Nil(t, r.Propagate(d))
	require.True(t, d.Entails(isTrue(c)))

	// explanation of the inferred literal: the falsified siblings
	ev := d.Event(d.ImplyingEvent(isTrue(c)))
	cause, ok := ev.Cause.AsExternalInference()
	require.True(t, ok)
	require.Equal(t, state.ReasonerSat, cause.Writer)
	out := &state.Explanation{}
	r.Explain(cause, isTrue(c), d, out)
	require.ElementsMatch(t, []core.Lit{isFalse(a), isFalse(b)}, out.Lits)
}

func TestBacktracking(t *testing.T) {
	d := state.NewDomains()
	r := NewReasoner(DefaultParams(), nil)
	a, b := newBool(d), newBool(d)

	r.AddClause(core.Clause(isTrue(a), isTrue(b)))
	require.Nil(t, r.Propagate(d))

	r.SaveState()
	decide(t, d, isFalse(a))
	require.Nil(t, r.Propagate(d))
	require.True(t, d.Entails(isTrue(b)))

	d.RestoreLast()
	r.RestoreLast()
	_, known := d.Value(isTrue(b))
	require.False(t, known)

	r.SaveState()
	decide(t, d, isFalse(b))
	require.Nil(t, r.Propagate(d))
	require.True(t, d.Entails(isTrue(a)))
}

func TestScopedClauseDeactivates(t *testing.T) {
	d := state.NewDomains()
	r := NewReasoner(DefaultParams(), nil)
	scope, a := newBool(d), newBool(d)

	r.AddScopedClause(core.Clause(isTrue(a)), isTrue(scope))
	require.Nil(t, r.Propagate(d))

	decide(t, d, isFalse(a))
	// the clause is violated but its scope is free: it deactivates itself
	require.Nil(t, r.Propagate(d))
	require.True(t, d.Entails(isFalse(scope)))
}

func TestScopedClauseConflictsWhenActive(t *testing.T) {
	d := state.NewDomains()
	r := NewReasoner(DefaultParams(), nil)
	scope, a := newBool(d), newBool(d)

	r.AddScopedClause(core.Clause(isTrue(a)), isTrue(scope))
	require.Nil(t, r.Propagate(d))

	decide(t, d, isTrue(scope))
	decide(t, d, isFalse(a))
	conflict := r.Propagate(d)
	require.NotNil(t, conflict)
	require.Contains(t, conflict.Expl.Lits, isTrue(scope))
	require.Contains(t, conflict.Expl.Lits, isFalse(a))
}

func TestLearntClauseAssertsItsLiteral(t *testing.T) {
	d := state.NewDomains()
	r := NewReasoner(DefaultParams(), nil)
	a, b := newBool(d), newBool(d)

	decide(t, d, isFalse(a))
	// learnt clauses set their asserted literal even when not unit
	r.AddLearntClause(core.Clause(isTrue(a), isTrue(b)), isTrue(b), 2)
	require.Nil(t, r.Propagate(d))
	require.True(t, d.Entails(isTrue(b)))
}

func TestIntegerBoundClause(t *testing.T) {
	d := state.NewDomains()
	r := NewReasoner(DefaultParams(), nil)
	x := d.NewVar(0, 10)
	y := d.NewVar(0, 10)

	// x <= 3 or y >= 7
	r.AddClause(core.Clause(core.Leq(x, 3), core.Geq(y, 7)))
	require.Nil(t, r.Propagate(d))

	decide(t, d, core.Geq(x, 5))
	require.Nil(t, r.Propagate(d))
	require.True(t, d.Entails(core.Geq(y, 7)))
	lb, ub := d.Bounds(y)
	require.Equal(t, 7, lb)
	require.Equal(t, 10, ub)
}

func TestClauseDbReduction(t *testing.T) {
	db := NewClauseDb(DefaultClauseDbParams())
	var ids []ClauseId
	for i := 0; i < 10; i++ {
		c := NewClause(core.Clause(core.Geq(core.VarRef(i+1), 1)), true)
		c.LBD = 5
		ids = append(ids, db.Add(c))
	}
	// give the later clauses a higher activity
	for i := 5; i < 10; i++ {
		db.BumpActivity(ids[i])
	}
	removed := db.ReduceDb(
		func(id ClauseId) bool { return id == ids[0] },
		func(ClauseId, *Clause) {},
	)
	require.Equal(t, 4, removed)
	// the locked clause and the most active ones survive
	require.NotNil(t, db.Get(ids[0]))
	for i := 5; i < 10; i++ {
		require.NotNil(t, db.Get(ids[i]))
	}
}
