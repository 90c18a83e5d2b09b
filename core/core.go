// Package core defines the literal algebra shared by the solver and its
// reasoners: integer variables, signed views on their bounds, and bound
// literals of the form `svar <= value`.
package core

import "fmt"

// Limits on the constants handled by the solver. They leave enough headroom
// so that the sum of two in-range constants never overflows an int.
const (
	IntCstMax = 1 << 30
	IntCstMin = -IntCstMax
)

// VarRef identifies an integer variable of the domain store.
type VarRef uint32

// VarZero is present in every domain store with the singleton domain [0,0].
// It provides the two constant literals LitTrue and LitFalse.
const VarZero VarRef = 0

func (v VarRef) String() string {
	return fmt.Sprintf("v%d", uint32(v))
}

// Geq returns the literal `v >= value`.
func (v VarRef) Geq(value int) Lit { return Geq(v, value) }

// Leq returns the literal `v <= value`.
func (v VarRef) Leq(value int) Lit { return Leq(v, value) }

// SignedVar is a view of a variable bound: the plus view denotes the upper
// bound of the variable and the minus view the upper bound of its negation
// (i.e. the negated lower bound). The variable is in the high bits and the
// sign in the lowest one, so that the two views of a variable are adjacent.
type SignedVar uint32

// Plus returns the signed variable representing the upper bound of v.
func Plus(v VarRef) SignedVar { return SignedVar(v << 1) }

// Minus returns the signed variable representing the upper bound of -v.
func Minus(v VarRef) SignedVar { return SignedVar(v<<1 | 1) }

// Variable returns the variable this signed var is a view of.
func (s SignedVar) Variable() VarRef { return VarRef(s >> 1) }

// IsPlus indicates whether this is the upper-bound view of its variable.
func (s SignedVar) IsPlus() bool { return s&1 == 0 }

// Neg returns the opposite view of the same variable.
func (s SignedVar) Neg() SignedVar { return s ^ 1 }

// Leq returns the literal `s <= value` where value is expressed in the view
// of the signed variable (for a minus view, `-v <= value`).
func (s SignedVar) Leq(value int) Lit { return Lit{svar: s, bound: UpperBound(value)} }

func (s SignedVar) String() string {
	if s.IsPlus() {
		return fmt.Sprintf("+%s", s.Variable())
	}
	return fmt.Sprintf("-%s", s.Variable())
}

// UpperBound is a bound on a signed variable. For the plus view it is the
// upper bound of the variable, for the minus view the negation of its lower
// bound. With this convention, all domain updates are decreases.
type UpperBound int

// Stronger returns true if b is at least as restrictive as o.
func (b UpperBound) Stronger(o UpperBound) bool { return b <= o }

// StrictlyStronger returns true if b is strictly more restrictive than o.
func (b UpperBound) StrictlyStronger(o UpperBound) bool { return b < o }

// CompatibleWithSymmetric returns true if this bound, together with the
// given bound on the opposite view, leaves a non-empty domain.
// With ub(v) = b and -lb(v) = o, the domain is non-empty iff b + o >= 0.
func (b UpperBound) CompatibleWithSymmetric(o UpperBound) bool { return b+o >= 0 }
