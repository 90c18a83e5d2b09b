package core

import "fmt"

// Lit is a literal of the form `svar <= bound`. Literals on the minus view
// of a variable express lower bounds: `-v <= b` is `v >= -b`.
//
// The zero value of the type is `+v0 <= 0`, i.e. LitTrue.
type Lit struct {
	svar  SignedVar
	bound UpperBound
}

// The two constant literals, defined on the zero variable whose domain
// is always the singleton [0,0].
var (
	LitTrue  = Lit{svar: Plus(VarZero), bound: 0}
	LitFalse = Lit{svar: Plus(VarZero), bound: 0}.Not()
)

// Leq returns the literal `v <= value`.
func Leq(v VarRef, value int) Lit {
	return Lit{svar: Plus(v), bound: UpperBound(value)}
}

// Lt returns the literal `v < value`.
func Lt(v VarRef, value int) Lit { return Leq(v, value-1) }

// Geq returns the literal `v >= value`.
func Geq(v VarRef, value int) Lit {
	return Lit{svar: Minus(v), bound: UpperBound(-value)}
}

// Gt returns the literal `v > value`.
func Gt(v VarRef, value int) Lit { return Geq(v, value+1) }

// Svar returns the signed variable the literal constrains.
func (l Lit) Svar() SignedVar { return l.svar }

// Bound returns the upper bound the literal imposes on its signed variable.
func (l Lit) Bound() UpperBound { return l.bound }

// Variable returns the variable the literal constrains.
func (l Lit) Variable() VarRef { return l.svar.Variable() }

// Not returns the negation of the literal: not(x <= k) is (x >= k+1),
// expressed as (-x <= -k-1).
func (l Lit) Not() Lit {
	return Lit{svar: l.svar.Neg(), bound: -l.bound - 1}
}

// Entails returns true if this literal is at least as strong as o:
// both are on the same signed variable and this bound is stronger.
// Entailment is only defined on literals of the same signed variable.
func (l Lit) Entails(o Lit) bool {
	return l.svar == o.svar && l.bound.Stronger(o.bound)
}

// Cmp orders literals by signed variable first and by increasing strength
// second, the order expected by Disjunction.
func (l Lit) Cmp(o Lit) int {
	if l.svar != o.svar {
		if l.svar < o.svar {
			return -1
		}
		return 1
	}
	if l.bound != o.bound {
		if l.bound < o.bound {
			return -1
		}
		return 1
	}
	return 0
}

func (l Lit) String() string {
	if l == LitTrue {
		return "true"
	}
	if l == LitFalse {
		return "false"
	}
	if l.svar.IsPlus() {
		return fmt.Sprintf("%s <= %d", l.Variable(), int(l.bound))
	}
	return fmt.Sprintf("%s >= %d", l.Variable(), -int(l.bound))
}
