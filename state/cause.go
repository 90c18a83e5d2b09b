// Package state implements the shared domain store of the solver: integer
// domains updated through bound literals, optional variables guarded by
// presence literals, a chronological event trail, and the conflict analysis
// machinery that turns failed updates into learnable clauses.
package state

import (
	"fmt"

	"github.com/plaans/aries-sub004/core"
)

// ReasonerId identifies the propagator that produced an inference.
// Identifiers also fix the propagation order of the reasoners.
type ReasonerId uint8

const (
	// ReasonerSat is the clause propagator, always run first.
	ReasonerSat ReasonerId = iota
	// ReasonerDiff is the difference-logic propagator.
	ReasonerDiff
	// ReasonerTautologies re-imposes learnt unit clauses after restarts.
	ReasonerTautologies

	// NumReasoners is the number of reasoner slots.
	NumReasoners
)

func (r ReasonerId) String() string {
	switch r {
	case ReasonerSat:
		return "sat"
	case ReasonerDiff:
		return "diff"
	case ReasonerTautologies:
		return "tautologies"
	default:
		return fmt.Sprintf("reasoner(%d)", uint8(r))
	}
}

// InferenceCause identifies an inference made by a reasoner. The payload is
// an opaque value that only the emitting reasoner can interpret, typically
// the identifier of the propagator involved.
type InferenceCause struct {
	Writer  ReasonerId
	Payload uint32
}

// CauseKind discriminates the possible causes of a domain update.
type CauseKind uint8

const (
	// KindDecision tags search decisions.
	KindDecision CauseKind = iota
	// KindEncoding tags updates from the problem definition.
	KindEncoding
	// KindAssumption tags externally assumed literals.
	KindAssumption
	// KindInference tags updates inferred by a reasoner.
	KindInference
	// KindImplication tags updates propagated through the implication graph.
	KindImplication
)

// Cause describes why a domain update is requested.
type Cause struct {
	Kind      CauseKind
	Inference InferenceCause // for KindInference
	Implier   core.Lit       // for KindImplication
}

// The constant causes.
var (
	Decision   = Cause{Kind: KindDecision}
	Encoding   = Cause{Kind: KindEncoding}
	Assumption = Cause{Kind: KindAssumption}
)

// Inferred returns the cause of an inference of the given reasoner.
func Inferred(writer ReasonerId, payload uint32) Cause {
	return Cause{Kind: KindInference, Inference: InferenceCause{Writer: writer, Payload: payload}}
}

// ImpliedBy returns the cause of a propagation through the implication graph.
func ImpliedBy(l core.Lit) Cause {
	return Cause{Kind: KindImplication, Implier: l}
}

// Origin is the cause recorded on an event of the trail. In addition to the
// requesting cause, it remembers whether the event is the inference of an
// absence triggered by an update that would have emptied an optional domain.
type Origin struct {
	Cause
	// FromEmptyDomain is set when the event forces a presence literal to
	// false; EmptiedLit is then the update that would have emptied the
	// domain and Cause the cause of that update.
	FromEmptyDomain bool
	EmptiedLit      core.Lit
}

// DirectOrigin wraps a plain cause into an origin.
func DirectOrigin(c Cause) Origin { return Origin{Cause: c} }

// EmptyDomainOrigin records that setting emptied (for the given cause) would
// have emptied an optional domain, forcing the variable absent.
func EmptyDomainOrigin(emptied core.Lit, c Cause) Origin {
	return Origin{Cause: c, FromEmptyDomain: true, EmptiedLit: emptied}
}

// AsExternalInference returns the inference cause if the origin is a plain
// reasoner inference.
func (o Origin) AsExternalInference() (InferenceCause, bool) {
	if o.FromEmptyDomain || o.Kind != KindInference {
		return InferenceCause{}, false
	}
	return o.Inference, true
}
