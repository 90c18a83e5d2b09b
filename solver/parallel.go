package solver

import (
	"context"
	"errors"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/plaans/aries-sub004/core"
)

// Learnt clauses larger than this are kept private to their worker.
const maxSharedClauseSize = 6

// sharedClauseBuffer is the capacity of each worker's incoming clause
// channel; clauses are dropped rather than blocking a publisher.
const sharedClauseBuffer = 1024

// ParSolver runs several differently-configured copies of a solver on
// the same problem. Workers exchange short learnt clauses; the first
// definitive answer wins and interrupts the others.
type ParSolver struct {
	solvers []*Solver
}

// NewParSolver builds a portfolio of the given size. The base solver
// becomes the first worker; the copies alternate the branching polarity
// and stagger their restart schedules.
func NewParSolver(base *Solver, threads int) *ParSolver {
	solvers := []*Solver{base}
	for i := 1; i < threads; i++ {
		c := base.Clone(i)
		c.brancher.preferMin = i%2 == 0
		c.brancher.allowedConflicts += uint64(i) * 40
		solvers = append(solvers, c)
	}
	p := &ParSolver{solvers: solvers}
	p.wireClauseSharing()
	return p
}

// Solve runs all workers until the first one returns an answer. The
// result is that of the winning worker: an assignment, nil for
// unsatisfiable, or the context error.
func (p *ParSolver) Solve(ctx context.Context) (*Assignment, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		id  int
		a   *Assignment
		err error
	}
	results := make(chan result, len(p.solvers))
	g := &errgroup.Group{}
	for _, s := range p.solvers {
		s := s
		g.Go(func() error {
			a, err := s.Solve(ctx)
			results <- result{id: s.id, a: a, err: err}
			return nil
		})
	}

	finished := mapset.NewSet[int]()
	var winner result
	decided := false
	for range p.solvers {
		r := <-results
		finished.Add(r.id)
		if !decided && !errors.Is(r.err, ErrCancelled) {
			winner = r
			decided = true
			cancel()
		}
	}
	_ = g.Wait()
	if !decided {
		return nil, ErrCancelled
	}
	for _, s := range p.solvers {
		s.log.WithFields(logrus.Fields{
			"winner": winner.id, "finished": finished.Cardinality(),
		}).Debugf("worker stats:\n%s", s.Stats())
	}
	return winner.a, winner.err
}

// wireClauseSharing connects every worker to its peers: each publishes
// its short root-level learnt clauses, each drains its inbox at
// propagation boundaries. Full inboxes drop clauses instead of blocking.
func (p *ParSolver) wireClauseSharing() {
	inputs := make([]chan core.Disjunction, len(p.solvers))
	for i := range p.solvers {
		inputs[i] = make(chan core.Disjunction, sharedClauseBuffer)
		p.solvers[i].incoming = inputs[i]
	}
	for i, s := range p.solvers {
		i := i
		s.sink = func(d core.Disjunction) {
			for j, ch := range inputs {
				if j == i {
					continue
				}
				select {
				case ch <- d:
				default:
				}
			}
		}
	}
}

// Stats returns the counters of every worker.
func (p *ParSolver) Stats() []Stats {
	out := make([]Stats, len(p.solvers))
	for i, s := range p.solvers {
		out[i] = s.Stats()
	}
	return out
}
