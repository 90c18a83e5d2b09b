package core

import "sort"

// Disjunction is a set of literals understood as their logical or.
// Literals are kept sorted, without duplicates and without literals
// subsumed by a weaker literal on the same signed variable.
type Disjunction struct {
	lits []Lit
}

// NewDisjunction builds a disjunction from the given literals.
// The slice is reordered in place.
func NewDisjunction(lits []Lit) Disjunction {
	sort.Slice(lits, func(i, j int) bool { return lits[i].Cmp(lits[j]) < 0 })
	// on a given signed var, only keep the weakest literal (the largest
	// bound): x <= 3 or x <= 5 simplifies to x <= 5
	out := lits[:0]
	for i, l := range lits {
		if i+1 < len(lits) && lits[i+1].Svar() == l.Svar() {
			continue
		}
		out = append(out, l)
	}
	return Disjunction{lits: out}
}

// Clause builds a disjunction from literals given as arguments.
func Clause(lits ...Lit) Disjunction { return NewDisjunction(lits) }

// Lits returns the literals of the disjunction, in sorted order.
// The returned slice must not be modified.
func (d Disjunction) Lits() []Lit { return d.lits }

// Len returns the number of literals.
func (d Disjunction) Len() int { return len(d.lits) }

// IsEmpty returns true for the empty disjunction, i.e. the false constant.
func (d Disjunction) IsEmpty() bool { return len(d.lits) == 0 }

// Contains returns true if the disjunction contains the given literal.
func (d Disjunction) Contains(lit Lit) bool {
	for _, l := range d.lits {
		if l == lit {
			return true
		}
	}
	return false
}

// IsTautology returns true if the disjunction is necessarily true, i.e. it
// contains two literals `x <= a` and `x >= b` with b <= a+1.
func (d Disjunction) IsTautology() bool {
	for i, l := range d.lits {
		// literals on the two views of a variable are adjacent after sorting
		if i+1 >= len(d.lits) {
			break
		}
		n := d.lits[i+1]
		if l.Svar() == n.Svar().Neg() {
			// l is `v <= a` (plus view sorts first) and n is `v >= -nb`
			a := int(l.Bound())
			b := -int(n.Bound())
			if b <= a+1 {
				return true
			}
		}
	}
	return false
}

func (d Disjunction) String() string {
	s := "("
	for i, l := range d.lits {
		if i > 0 {
			s += " | "
		}
		s += l.String()
	}
	return s + ")"
}

// LitSet is a set of literals with entailment semantics: it only records
// the strongest inserted bound for each signed variable.
type LitSet struct {
	strongest map[SignedVar]UpperBound
}

// NewLitSet returns an empty literal set.
func NewLitSet() *LitSet {
	return &LitSet{strongest: map[SignedVar]UpperBound{}}
}

// Insert adds the literal, keeping only the strongest bound per signed var.
func (s *LitSet) Insert(l Lit) {
	if b, ok := s.strongest[l.Svar()]; !ok || l.Bound().StrictlyStronger(b) {
		s.strongest[l.Svar()] = l.Bound()
	}
}

// Entails returns true if some literal of the set entails l.
func (s *LitSet) Entails(l Lit) bool {
	b, ok := s.strongest[l.Svar()]
	return ok && b.Stronger(l.Bound())
}

// Lits returns the strongest literal recorded for each signed variable.
func (s *LitSet) Lits() []Lit {
	out := make([]Lit, 0, len(s.strongest))
	for sv, b := range s.strongest {
		out = append(out, sv.Leq(int(b)))
	}
	return out
}

// Len returns the number of signed variables with a recorded literal.
func (s *LitSet) Len() int { return len(s.strongest) }
