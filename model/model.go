// Package model provides the problem-definition layer: typed variables
// with labels, constraint expressions, and their reification into
// literals. The model records constraint bindings that the solver encodes
// into its reasoners.
package model

import (
	"errors"
	"fmt"

	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/state"
)

// ErrInvalidProblem reports a problem whose definition is contradictory
// at the root, before any search.
var ErrInvalidProblem = errors.New("invalid problem definition")

// Binding associates an expression with a literal. The solver encodes
// `Lit => Expr`, and additionally `Expr => Lit` unless the binding is
// half-reified.
type Binding struct {
	Expr Expr
	Lit  core.Lit
	Half bool
}

// Model is the definition of a problem: its variables and the constraint
// bindings awaiting encoding.
type Model struct {
	State *state.Domains

	labels   map[core.VarRef]string
	bindings []Binding
	// interned reifications of canonical expressions
	reified map[string]core.Lit
	// interned conjunctive scope literals
	scopes map[string]core.Lit
	// interned scope tautologies: a literal entailed true whose variable
	// is present exactly in the scope
	tautologies map[core.Lit]core.Lit
}

// New creates an empty model.
func New() *Model {
	return &Model{
		State:       state.NewDomains(),
		labels:      map[core.VarRef]string{},
		reified:     map[string]core.Lit{},
		scopes:      map[string]core.Lit{},
		tautologies: map[core.Lit]core.Lit{},
	}
}

// NewIntVar creates an integer variable with domain [lb, ub].
func (m *Model) NewIntVar(lb, ub int, label string) core.VarRef {
	v := m.State.NewVar(lb, ub)
	m.setLabel(v, label)
	return v
}

// NewOptionalIntVar creates an integer variable that is only present when
// the given literal holds.
func (m *Model) NewOptionalIntVar(lb, ub int, presence core.Lit, label string) core.VarRef {
	v := m.State.NewOptionalVar(lb, ub, presence)
	m.setLabel(v, label)
	return v
}

// NewBoolVar creates a boolean variable and returns its true literal.
func (m *Model) NewBoolVar(label string) core.Lit {
	return core.Geq(m.NewIntVar(0, 1, label), 1)
}

// NewPresenceVar creates a boolean variable constrained to be false
// whenever scope is: it can serve as the presence literal of variables
// nested in the scope.
func (m *Model) NewPresenceVar(scope core.Lit, label string) core.Lit {
	lit := m.NewBoolVar(label)
	if scope != core.LitTrue {
		if fail := m.State.AddImplication(lit, scope); fail != nil {
			panic(fmt.Sprintf("presence variable in falsified scope: %v", fail))
		}
	}
	return lit
}

func (m *Model) setLabel(v core.VarRef, label string) {
	if label != "" {
		m.labels[v] = label
	}
}

// Label returns the label of the variable, or its default printed form.
func (m *Model) Label(v core.VarRef) string {
	if l, ok := m.labels[v]; ok {
		return l
	}
	return v.String()
}

// Bindings returns the constraint bindings recorded so far.
func (m *Model) Bindings() []Binding { return m.bindings }

// PresenceOf returns the presence literal of the variable.
func (m *Model) PresenceOf(v core.VarRef) core.Lit { return m.State.PresenceOf(v) }

// Enforce records that the expression must hold whenever the variables it
// involves are present.
func (m *Model) Enforce(e Expr) {
	e = e.canonical()
	guard := m.TautologyIn(m.scopeOf(e))
	m.bindings = append(m.bindings, Binding{Expr: e, Lit: guard, Half: true})
}

// Reify returns a literal that is true iff the expression holds. The
// literal is interned: structurally equal expressions (or their
// negations) share it.
func (m *Model) Reify(e Expr) core.Lit {
	e = e.canonical()
	if e.Kind == ExprLit {
		return e.Literal
	}
	if e.Kind == ExprOr {
		if core.NewDisjunction(e.Lits).IsTautology() {
			return core.LitTrue
		}
		if len(e.Lits) == 0 {
			return core.LitFalse
		}
	}
	if l, ok := m.reified[e.key()]; ok {
		return l
	}
	if l, ok := m.reified[e.negated().canonical().key()]; ok {
		return l.Not()
	}
	scope := m.scopeOf(e)
	v := m.State.NewOptionalVar(0, 1, scope)
	lit := core.Geq(v, 1)
	m.reified[e.key()] = lit
	m.bindings = append(m.bindings, Binding{Expr: e, Lit: lit})
	return lit
}

// Bind records that the literal holds iff the expression does. If the
// expression was already reified, the two literals are made equal.
func (m *Model) Bind(e Expr, lit core.Lit) {
	e = e.canonical()
	if existing := m.lookup(e); existing != nil {
		// bind the two literals to each other
		m.bindings = append(m.bindings,
			Binding{Expr: Lit(*existing), Lit: lit, Half: true},
			Binding{Expr: Lit(lit), Lit: *existing, Half: true},
		)
		return
	}
	m.reified[e.key()] = lit
	m.bindings = append(m.bindings, Binding{Expr: e, Lit: lit})
}

func (m *Model) lookup(e Expr) *core.Lit {
	if e.Kind == ExprLit {
		l := e.Literal
		return &l
	}
	if l, ok := m.reified[e.key()]; ok {
		return &l
	}
	if l, ok := m.reified[e.negated().canonical().key()]; ok {
		n := l.Not()
		return &n
	}
	return nil
}

// scopeOf returns the validity scope of the expression: the conjunction
// of the presence literals of its variables.
func (m *Model) scopeOf(e Expr) core.Lit {
	var presences []core.Lit
	add := func(v core.VarRef) {
		p := m.State.PresenceOf(v)
		if p == core.LitTrue {
			return
		}
		for _, q := range presences {
			if q == p {
				return
			}
		}
		presences = append(presences, p)
	}
	switch e.Kind {
	case ExprLit:
		add(e.Literal.Variable())
	case ExprMaxDiff:
		add(e.Source)
		add(e.Target)
	case ExprOr, ExprAnd:
		for _, l := range e.Lits {
			add(l.Variable())
		}
	}
	return m.conjunctiveScope(presences)
}

// conjunctiveScope returns a literal that holds iff all the given
// literals do. Conjuncts implied by another conjunct are dropped; the
// literal is interned per set of remaining conjuncts.
func (m *Model) conjunctiveScope(lits []core.Lit) core.Lit {
	var kept []core.Lit
	for i, l := range lits {
		redundant := false
		for j, o := range lits {
			if i == j || !m.State.Implies(o, l) {
				continue
			}
			if i < j && m.State.Implies(l, o) {
				continue // mutual implication, keep the first
			}
			redundant = true
			break
		}
		if !redundant {
			kept = append(kept, l)
		}
	}
	lits = kept
	switch len(lits) {
	case 0:
		return core.LitTrue
	case 1:
		return lits[0]
	}
	e := And(lits...).canonical()
	if e.Kind == ExprLit {
		return e.Literal
	}
	if l, ok := m.scopes[e.key()]; ok {
		return l
	}
	scope := m.NewBoolVar("")
	for _, l := range e.Lits {
		if fail := m.State.AddImplication(scope, l); fail != nil {
			panic(fmt.Sprintf("contradictory scope definition: %v", fail))
		}
	}
	m.scopes[e.key()] = scope
	m.bindings = append(m.bindings, Binding{Expr: e, Lit: scope})
	return scope
}

// TautologyIn returns a literal that is entailed whenever the scope holds
// and whose variable is present exactly in the scope. It guards
// constraints enforced on optional variables.
func (m *Model) TautologyIn(scope core.Lit) core.Lit {
	if scope == core.LitTrue {
		return core.LitTrue
	}
	if l, ok := m.tautologies[scope]; ok {
		return l
	}
	v := m.State.NewOptionalVar(1, 1, scope)
	lit := core.Geq(v, 1)
	m.tautologies[scope] = lit
	return lit
}

// Clone returns an independent deep copy of the model.
func (m *Model) Clone() *Model {
	out := &Model{
		State:       m.State.Clone(),
		labels:      make(map[core.VarRef]string, len(m.labels)),
		bindings:    append([]Binding(nil), m.bindings...),
		reified:     make(map[string]core.Lit, len(m.reified)),
		scopes:      make(map[string]core.Lit, len(m.scopes)),
		tautologies: make(map[core.Lit]core.Lit, len(m.tautologies)),
	}
	for k, v := range m.labels {
		out.labels[k] = v
	}
	for k, v := range m.reified {
		out.reified[k] = v
	}
	for k, v := range m.scopes {
		out.scopes[k] = v
	}
	for k, v := range m.tautologies {
		out.tautologies[k] = v
	}
	return out
}
