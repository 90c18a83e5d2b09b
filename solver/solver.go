// Package solver drives the search: it couples the clause and
// difference-logic propagators over the shared domain store, learns a
// clause from every conflict, branches on variable activities and
// restarts on a geometric schedule. Entry points cover satisfaction,
// optimization, solving under assumptions and a parallel portfolio.
package solver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/plaans/aries-sub004/backtrack"
	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/model"
	"github.com/plaans/aries-sub004/sat"
	"github.com/plaans/aries-sub004/state"
	"github.com/plaans/aries-sub004/stn"
)

// The user-visible termination causes. Internal conditions (invalid
// updates, conflicts) never cross the solver boundary.
var (
	// ErrCancelled reports that the context was cancelled before an answer
	// was reached.
	ErrCancelled = errors.New("solver: cancelled")
	// ErrTimeout reports that the context deadline expired before an
	// answer was reached.
	ErrTimeout = errors.New("solver: timeout")
)

// UnsatCoreError reports that the assumptions given to
// SolveWithAssumptions are incompatible with the constraints; Core is a
// subset of them that is itself unsatisfiable.
type UnsatCoreError struct {
	Core state.UnsatCore
}

func (e *UnsatCoreError) Error() string {
	return fmt.Sprintf("unsatisfiable assumptions (core of %d literals)", len(e.Core.Lits))
}

// Solver searches for an assignment satisfying all constraints of a
// model. It owns the model exclusively; a solver must not be used from
// multiple goroutines.
type Solver struct {
	Model *model.Model

	doms      *state.Domains
	reasoners *reasoners
	brancher  *Brancher
	conf      Conf
	stats     Stats

	// next model binding to encode
	posted int
	// level below which the search never backtracks; above root when
	// solving under assumptions
	lastAssumptionLevel backtrack.DecLvl

	// portfolio plumbing: learnt clauses flow out through sink, peers'
	// clauses flow in through incoming
	id       int
	sink     func(core.Disjunction)
	incoming chan core.Disjunction

	log *logrus.Entry
}

// New creates a solver for the model, configured from the environment.
// The solver logs nowhere until SetLogger is called.
func New(m *model.Model) *Solver {
	log := discardLogger()
	return NewWithConf(m, ConfFromEnv(log), log)
}

// NewWithConf creates a solver with an explicit configuration and logger.
func NewWithConf(m *model.Model, conf Conf, log *logrus.Entry) *Solver {
	return &Solver{
		Model: m,
		doms:  m.State,
		reasoners: &reasoners{
			sat:         sat.NewReasoner(sat.DefaultParams(), log),
			diff:        stn.NewReasoner(stn.Config{TheoryPropagation: conf.TheoryPropagation}, log),
			tautologies: newTautologies(),
		},
		brancher: NewBrancher(conf),
		conf:     conf,
		stats:    newStats(),
		log:      log,
	}
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// SetLogger installs the logger used by the solver and its reasoners for
// subsequent operations.
func (s *Solver) SetLogger(log *logrus.Entry) { s.log = log }

// Stats returns a snapshot of the search counters.
func (s *Solver) Stats() Stats { return s.stats.clone() }

// Enforce records a constraint on the model; it is encoded at the start
// of the next solve.
func (s *Solver) Enforce(e model.Expr) { s.Model.Enforce(e) }

// postPending encodes the model bindings recorded since the last call
// into the reasoners. Must run at a level where no search decision is
// active.
func (s *Solver) postPending() {
	bs := s.Model.Bindings()
	if s.posted == len(bs) {
		s.brancher.ImportVars(s.doms)
		return
	}
	if s.doms.CurrentLevel() != s.lastAssumptionLevel {
		panic("constraints must be posted before any decision")
	}
	for ; s.posted < len(bs); s.posted++ {
		s.postBinding(bs[s.posted])
	}
	s.brancher.ImportVars(s.doms)
}

// postBinding encodes `lit => expr` (plus the converse unless the binding
// is half-reified) into the owning reasoner.
func (s *Solver) postBinding(b model.Binding) {
	lit := b.Lit
	scope := s.doms.PresenceLit(lit)
	e := b.Expr
	switch e.Kind {
	case model.ExprLit:
		s.addScopedClause(direction(lit, e.Literal), scope)
		if !b.Half {
			s.addScopedClause(direction(e.Literal, lit), scope)
		}
	case model.ExprOr:
		var lits []core.Lit
		if lit != core.LitTrue {
			lits = append(lits, lit.Not())
		}
		lits = append(lits, e.Lits...)
		s.addScopedClause(core.NewDisjunction(lits), scope)
		if !b.Half {
			for _, l := range e.Lits {
				s.addScopedClause(direction(l, lit), scope)
			}
		}
	case model.ExprAnd:
		for _, l := range e.Lits {
			s.addScopedClause(direction(lit, l), scope)
		}
		if !b.Half {
			lits := make([]core.Lit, 0, len(e.Lits)+1)
			for _, l := range e.Lits {
				lits = append(lits, l.Not())
			}
			lits = append(lits, lit)
			s.addScopedClause(core.NewDisjunction(lits), scope)
		}
	case model.ExprMaxDiff:
		if b.Half {
			s.reasoners.diff.AddHalfReifiedEdge(lit, e.Source, e.Target, e.Weight, s.doms)
		} else {
			s.reasoners.diff.AddReifiedEdge(lit, e.Source, e.Target, e.Weight, s.doms)
		}
	}
}

// direction builds the clause of the implication `from => to`.
func direction(from, to core.Lit) core.Disjunction {
	if from == core.LitTrue {
		return core.Clause(to)
	}
	return core.Clause(from.Not(), to)
}

func (s *Solver) addScopedClause(d core.Disjunction, scope core.Lit) {
	if d.IsTautology() {
		return
	}
	if scope == core.LitTrue {
		s.reasoners.sat.AddClause(d)
		return
	}
	s.reasoners.sat.AddScopedClause(d, scope)
}

// Propagate runs all reasoners, in order, until their shared fixed point
// or a conflict. On conflict the returned clause is already refined to
// the first unique implication point; events of the current level have
// been unwound and the caller must backtrack.
func (s *Solver) Propagate() *state.Conflict {
	for {
		before := s.doms.Trail().Len()
		for _, r := range s.reasoners.all() {
			start := time.Now()
			contradiction := r.Propagate(s.doms)
			s.stats.addPropagationTime(r.Identity(), time.Since(start))
			if contradiction != nil {
				var conflict state.Conflict
				if contradiction.Invalid != nil {
					conflict = s.doms.ClauseForInvalidUpdate(contradiction.Invalid, s.reasoners)
				} else {
					conflict = s.doms.RefineExplanation(contradiction.Expl, s.reasoners)
				}
				return &conflict
			}
		}
		if s.doms.Trail().Len() == before {
			return nil
		}
	}
}

// PropagateAndBacktrackToConsistent propagates to the fixed point,
// learning a clause and backjumping on every conflict. It returns false,
// with the offending conflict, when a conflict does not depend on any
// search decision: the problem is unsatisfiable under the current
// assumptions.
func (s *Solver) PropagateAndBacktrackToConsistent() (bool, *state.Conflict) {
	for {
		conflict := s.Propagate()
		if conflict == nil {
			return true, nil
		}
		if !s.learnAndBacktrack(conflict) {
			return false, conflict
		}
	}
}

// learnAndBacktrack integrates a conflict: bumps activities, minimizes
// the learnt clause, backjumps and records the clause so that it asserts
// its literal on the next propagation.
func (s *Solver) learnAndBacktrack(conflict *state.Conflict) bool {
	s.stats.Conflicts++
	s.brancher.NotifyConflict(conflict, s.doms)
	lits := s.minimizeClause(conflict.Clause.Lits())

	// conflicting level and backjump level: highest and second-highest
	// levels at which a literal of the clause was falsified
	maxLvl, sndLvl := backtrack.Root, backtrack.Root
	for _, l := range lits {
		lvl := s.doms.EntailingLevel(l.Not())
		if lvl > maxLvl {
			sndLvl, maxLvl = maxLvl, lvl
		} else if lvl > sndLvl {
			sndLvl = lvl
		}
	}
	if maxLvl <= s.lastAssumptionLevel {
		// conflict independent of any search decision
		return false
	}
	lbd := s.lbd(lits)
	target := sndLvl
	if target < s.lastAssumptionLevel {
		target = s.lastAssumptionLevel
	}
	s.backtrackTo(target)

	d := core.NewDisjunction(lits)
	asserted := core.LitFalse
	for _, l := range d.Lits() {
		if !s.doms.Entails(l.Not()) {
			asserted = l
			break
		}
	}
	if d.Len() == 1 && s.lastAssumptionLevel == backtrack.Root {
		// unit clauses learnt at the root survive restarts and resets
		s.reasoners.tautologies.Add(d.Lits()[0])
	}
	if s.sink != nil && s.lastAssumptionLevel == backtrack.Root && d.Len() <= maxSharedClauseSize {
		// clauses learnt under assumptions are not valid for the peers
		s.sink(d)
	}
	s.reasoners.sat.AddLearntClause(d, asserted, lbd)
	s.log.WithFields(logrus.Fields{"size": d.Len(), "lbd": lbd, "level": target}).
		Debug("learnt clause")
	return true
}

// minimizeClause removes the literals whose falsification is directly
// implied by the falsification of the others (self-subsumption against
// the literals' reasons).
func (s *Solver) minimizeClause(lits []core.Lit) []core.Lit {
	if len(lits) <= 1 {
		return lits
	}
	falsified := core.NewLitSet()
	for _, l := range lits {
		falsified.Insert(l.Not())
	}
	out := make([]core.Lit, 0, len(lits))
	for _, l := range lits {
		if s.redundant(l, falsified) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (s *Solver) redundant(l core.Lit, falsified *core.LitSet) bool {
	neg := l.Not()
	expl := &state.Explanation{}
	if !s.doms.ImplyingLiterals(neg, s.reasoners, expl) {
		return false // decision or assumption, no reason to resolve with
	}
	for _, r := range expl.Lits {
		if s.doms.EntailingLevel(r) == backtrack.Root || falsified.Entails(r) {
			continue
		}
		return false
	}
	return true
}

// lbd is the number of distinct non-root decision levels the clause
// literals were falsified at.
func (s *Solver) lbd(lits []core.Lit) uint32 {
	levels := mapset.NewThreadUnsafeSet[backtrack.DecLvl]()
	for _, l := range lits {
		levels.Add(s.doms.EntailingLevel(l.Not()))
	}
	levels.Remove(backtrack.Root)
	return uint32(levels.Cardinality())
}

// SaveState records a backtrack point on the domain store and every
// reasoner.
func (s *Solver) SaveState() {
	s.doms.SaveState()
	for _, r := range s.reasoners.all() {
		r.SaveState()
	}
}

// RestoreLast undoes everything since the last backtrack point.
func (s *Solver) RestoreLast() {
	s.backtrackTo(s.doms.CurrentLevel() - 1)
}

func (s *Solver) backtrackTo(lvl backtrack.DecLvl) {
	for s.doms.CurrentLevel() > lvl {
		s.doms.RestoreLast()
	}
	for _, r := range s.reasoners.all() {
		for r.NumSaved() > int(lvl) {
			r.RestoreLast()
		}
	}
	s.brancher.ImportVars(s.doms)
}

func (s *Solver) decide(l core.Lit) {
	s.SaveState()
	if _, fail := s.doms.Set(l, state.Decision); fail != nil {
		panic(fmt.Sprintf("decision on an emptied domain: %v", fail))
	}
}

// ResetSearch undoes all decisions and assumptions, keeping the learnt
// clauses. The solver is left at the root, ready for another solve.
func (s *Solver) ResetSearch() {
	s.backtrackTo(backtrack.Root)
	s.lastAssumptionLevel = backtrack.Root
}

// Solve searches for a satisfying assignment. It returns nil (with a nil
// error) when the problem is unsatisfiable, and ErrCancelled or
// ErrTimeout when the context ends first.
func (s *Solver) Solve(ctx context.Context) (*Assignment, error) {
	a, _, err := s.search(ctx)
	return a, err
}

func (s *Solver) search(ctx context.Context) (*Assignment, *state.Conflict, error) {
	s.postPending()
	initial := true
	for {
		if err := interrupted(ctx); err != nil {
			return nil, nil, err
		}
		consistent, base := s.PropagateAndBacktrackToConsistent()
		if !consistent {
			return nil, base, nil
		}
		if initial {
			initial = false
			if s.conf.PrintInitialPropagation {
				s.dumpDomains()
			}
		}
		s.drainSharedClauses()
		dec, ok := s.brancher.NextDecision(&s.stats, s.doms)
		if !ok {
			s.stats.Solutions++
			return newAssignment(s.doms), nil, nil
		}
		if dec.Restart {
			s.stats.Restarts++
			s.log.WithField("conflicts", s.stats.Conflicts).Info("restart")
			s.backtrackTo(s.lastAssumptionLevel)
			continue
		}
		s.stats.Decisions++
		s.decide(dec.Lit)
	}
}

// SolveWithAssumptions solves with the given literals held true. When
// they are incompatible with the constraints it returns an
// *UnsatCoreError carrying an unsatisfiable subset of them. The solver
// must be reset before reuse after a core was returned.
func (s *Solver) SolveWithAssumptions(ctx context.Context, assumptions []core.Lit) (*Assignment, error) {
	s.ResetSearch()
	s.postPending()
	for _, l := range assumptions {
		consistent, base := s.PropagateAndBacktrackToConsistent()
		if !consistent {
			c := s.doms.ExtractUnsatCoreAfterConflict(*base, s.reasoners)
			return nil, &UnsatCoreError{Core: c}
		}
		s.SaveState()
		s.lastAssumptionLevel = s.doms.CurrentLevel()
		if _, fail := s.doms.Set(l, state.Assumption); fail != nil {
			c := s.doms.ExtractUnsatCoreAfterInvalidUpdate(fail, s.reasoners)
			return nil, &UnsatCoreError{Core: c}
		}
	}
	a, base, err := s.search(ctx)
	if err != nil {
		return nil, err
	}
	if a == nil {
		var c state.UnsatCore
		if base != nil {
			c = s.doms.ExtractUnsatCoreAfterConflict(*base, s.reasoners)
		}
		return nil, &UnsatCoreError{Core: c}
	}
	return a, nil
}

func (s *Solver) drainSharedClauses() {
	if s.incoming == nil {
		return
	}
	for {
		select {
		case d := <-s.incoming:
			s.reasoners.sat.AddForgettableClause(d)
		default:
			return
		}
	}
}

func (s *Solver) dumpDomains() {
	for i := 1; i < s.doms.NumVars(); i++ {
		v := core.VarRef(i)
		lb, ub := s.doms.Bounds(v)
		s.log.WithFields(logrus.Fields{
			"var": s.Model.Label(v), "lb": lb, "ub": ub,
		}).Info("initial propagation")
	}
}

func interrupted(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrCancelled
	default:
		return nil
	}
}

// Clone returns an independent copy of the solver and its model, sharing
// nothing with the original. Used by the portfolio.
func (s *Solver) Clone(id int) *Solver {
	m := s.Model.Clone()
	return &Solver{
		Model:               m,
		doms:                m.State,
		reasoners:           s.reasoners.clone(),
		brancher:            s.brancher.Clone(),
		conf:                s.conf,
		stats:               s.stats.clone(),
		posted:              s.posted,
		lastAssumptionLevel: s.lastAssumptionLevel,
		id:                  id,
		log:                 s.log.WithField("solver", id),
	}
}
