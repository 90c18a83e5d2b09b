package solver

import (
	"context"

	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/model"
)

// Minimize finds the assignment minimizing the value of the variable.
// The returned assignment is nil when the problem is unsatisfiable. On
// cancellation the best assignment found so far is returned together
// with the error.
func (s *Solver) Minimize(ctx context.Context, obj core.VarRef) (int, *Assignment, error) {
	return s.MinimizeWith(ctx, obj, nil)
}

// MinimizeWith behaves like Minimize, additionally calling onImprovement
// on every improving solution.
func (s *Solver) MinimizeWith(ctx context.Context, obj core.VarRef, onImprovement func(int, *Assignment)) (int, *Assignment, error) {
	return s.optimize(ctx, obj, false, onImprovement)
}

// Maximize finds the assignment maximizing the value of the variable.
func (s *Solver) Maximize(ctx context.Context, obj core.VarRef) (int, *Assignment, error) {
	return s.optimize(ctx, obj, true, nil)
}

// optimize runs a sequence of satisfaction searches, each constrained to
// improve on the previous solution. The improvement constraints are
// posted at the root and survive the search resets.
func (s *Solver) optimize(ctx context.Context, obj core.VarRef, maximize bool, onImprovement func(int, *Assignment)) (int, *Assignment, error) {
	var best *Assignment
	bestValue := 0
	for {
		a, err := s.Solve(ctx)
		if err != nil {
			return bestValue, best, err
		}
		if a == nil {
			return bestValue, best, nil
		}
		value, bound := a.ValueOf(obj)
		if !bound {
			// the search left the objective unbound, any value of its
			// remaining domain is achievable
			if maximize {
				value = a.UpperBound(obj)
			}
		}
		best, bestValue = a, value
		if onImprovement != nil {
			onImprovement(value, a)
		}
		s.log.WithField("objective", value).Info("improved solution")
		s.ResetSearch()
		if maximize {
			s.Enforce(model.Lit(core.Geq(obj, value+1)))
		} else {
			s.Enforce(model.Lit(core.Leq(obj, value-1)))
		}
	}
}

// Enumerate calls f on every solution, where two solutions differ on the
// value of at least one variable, until f returns false or the solutions
// are exhausted.
func (s *Solver) Enumerate(ctx context.Context, f func(*Assignment) bool) error {
	for {
		a, err := s.Solve(ctx)
		if err != nil {
			return err
		}
		if a == nil {
			return nil
		}
		if !f(a) {
			return nil
		}
		// block the current assignment: some bound variable must take a
		// different value
		var blocking []core.Lit
		a.BoundVars(func(v core.VarRef, value int) {
			blocking = append(blocking, core.Lt(v, value), core.Gt(v, value))
		})
		if len(blocking) == 0 {
			return nil
		}
		s.ResetSearch()
		s.Enforce(model.Or(blocking...))
	}
}
