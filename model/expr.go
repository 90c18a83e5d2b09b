package model

import (
	"fmt"
	"strings"

	"github.com/plaans/aries-sub004/core"
)

// ExprKind discriminates the constraint shapes understood by the solver.
type ExprKind uint8

const (
	// ExprLit is a plain literal.
	ExprLit ExprKind = iota
	// ExprMaxDiff is the difference constraint `Target - Source <= Weight`.
	ExprMaxDiff
	// ExprOr is a disjunction of literals.
	ExprOr
	// ExprAnd is a conjunction of literals.
	ExprAnd
)

// Expr is a constraint expression, to be enforced or reified into a
// literal. Expressions are kept in a canonical form so that structurally
// equal constraints share their reification literal.
type Expr struct {
	Kind ExprKind

	// ExprLit
	Literal core.Lit

	// ExprMaxDiff
	Source core.VarRef
	Target core.VarRef
	Weight int

	// ExprOr / ExprAnd
	Lits []core.Lit
}

// Lit wraps a literal as an expression.
func Lit(l core.Lit) Expr { return Expr{Kind: ExprLit, Literal: l} }

// MaxDiff is the constraint `target - source <= weight`.
func MaxDiff(source, target core.VarRef, weight int) Expr {
	return Expr{Kind: ExprMaxDiff, Source: source, Target: target, Weight: weight}
}

// Leq is the constraint `a <= b`, a difference constraint of weight 0.
func Leq(a, b core.VarRef) Expr { return MaxDiff(b, a, 0) }

// Lt is the constraint `a < b`.
func Lt(a, b core.VarRef) Expr { return MaxDiff(b, a, -1) }

// Or is the disjunction of the given literals.
func Or(lits ...core.Lit) Expr {
	return Expr{Kind: ExprOr, Lits: lits}
}

// And is the conjunction of the given literals.
func And(lits ...core.Lit) Expr {
	return Expr{Kind: ExprAnd, Lits: lits}
}

// canonical normalizes the expression: disjunctions are simplified and
// sorted and single-literal compositions are flattened to the literal.
func (e Expr) canonical() Expr {
	switch e.Kind {
	case ExprOr:
		d := core.NewDisjunction(e.Lits)
		lits := d.Lits()
		if len(lits) == 1 {
			return Lit(lits[0])
		}
		return Expr{Kind: ExprOr, Lits: lits}
	case ExprAnd:
		neg := make([]core.Lit, len(e.Lits))
		for i, l := range e.Lits {
			neg[i] = l.Not()
		}
		d := core.NewDisjunction(neg)
		lits := make([]core.Lit, len(d.Lits()))
		for i, l := range d.Lits() {
			lits[i] = l.Not()
		}
		if len(lits) == 1 {
			return Lit(lits[0])
		}
		return Expr{Kind: ExprAnd, Lits: lits}
	default:
		return e
	}
}

// negated returns the expression that holds iff e does not.
func (e Expr) negated() Expr {
	switch e.Kind {
	case ExprLit:
		return Lit(e.Literal.Not())
	case ExprMaxDiff:
		// not(tgt - src <= w) is (src - tgt <= -w - 1)
		return MaxDiff(e.Target, e.Source, -e.Weight-1)
	case ExprOr:
		neg := make([]core.Lit, len(e.Lits))
		for i, l := range e.Lits {
			neg[i] = l.Not()
		}
		return Expr{Kind: ExprAnd, Lits: neg}
	case ExprAnd:
		neg := make([]core.Lit, len(e.Lits))
		for i, l := range e.Lits {
			neg[i] = l.Not()
		}
		return Expr{Kind: ExprOr, Lits: neg}
	default:
		panic("unknown expression kind")
	}
}

// key returns a canonical string identifying the expression, used to
// intern reifications.
func (e Expr) key() string {
	var b strings.Builder
	switch e.Kind {
	case ExprLit:
		fmt.Fprintf(&b, "lit %d %d", e.Literal.Svar(), e.Literal.Bound())
	case ExprMaxDiff:
		fmt.Fprintf(&b, "diff %d %d %d", e.Source, e.Target, e.Weight)
	case ExprOr:
		b.WriteString("or")
		for _, l := range e.Lits {
			fmt.Fprintf(&b, " %d %d", l.Svar(), l.Bound())
		}
	case ExprAnd:
		b.WriteString("and")
		for _, l := range e.Lits {
			fmt.Fprintf(&b, " %d %d", l.Svar(), l.Bound())
		}
	}
	return b.String()
}
