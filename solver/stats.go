package solver

import (
	"fmt"
	"strings"
	"time"

	"github.com/plaans/aries-sub004/state"
)

// Stats gathers per-solver search counters.
type Stats struct {
	Conflicts uint64
	Decisions uint64
	Restarts  uint64
	Solutions uint64

	// time spent in each reasoner's Propagate
	PropagationTime map[state.ReasonerId]time.Duration
}

func newStats() Stats {
	return Stats{PropagationTime: map[state.ReasonerId]time.Duration{}}
}

func (s *Stats) addPropagationTime(id state.ReasonerId, d time.Duration) {
	s.PropagationTime[id] += d
}

func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "conflicts: %d\n", s.Conflicts)
	fmt.Fprintf(&b, "decisions: %d\n", s.Decisions)
	fmt.Fprintf(&b, "restarts:  %d\n", s.Restarts)
	fmt.Fprintf(&b, "solutions: %d\n", s.Solutions)
	for id := state.ReasonerId(0); id < state.NumReasoners; id++ {
		if d, ok := s.PropagationTime[id]; ok {
			fmt.Fprintf(&b, "%-12s %v\n", id.String()+":", d)
		}
	}
	return b.String()
}

func (s Stats) clone() Stats {
	out := s
	out.PropagationTime = make(map[state.ReasonerId]time.Duration, len(s.PropagationTime))
	for k, v := range s.PropagationTime {
		out.PropagationTime[k] = v
	}
	return out
}
