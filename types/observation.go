package types

import "fmt"

// ObservationKind identifies which engine an observation is routed to.
type ObservationKind string

const (
	// KindAgreement reports whether two workers returned the same result.
	KindAgreement ObservationKind = "agreement"

	// KindCollusion reports whether two workers were caught returning the same
	// certified-wrong result.
	KindCollusion ObservationKind = "collusion"

	// KindJoin registers WorkerA with both engines of the pool.
	KindJoin ObservationKind = "join"

	// KindLeave removes WorkerA from both engines of the pool.
	KindLeave ObservationKind = "leave"
)

// Observation is a single event reported by the scheduling layer.
//
// Pairwise kinds carry both workers and a binary outcome: 1 increases the
// agreement/collusion evidence, 0 decreases it. Membership kinds only use
// WorkerA.
type Observation struct {
	// Pool names the worker population the observation belongs to.
	Pool string `json:"pool"`

	// Kind selects the engine or membership operation.
	Kind ObservationKind `json:"kind"`

	// WorkerA is the first worker of the pair (or the joining/leaving worker).
	WorkerA string `json:"workerA"`

	// WorkerB is the second worker of the pair. Empty for membership kinds.
	WorkerB string `json:"workerB,omitempty"`

	// Outcome is 1 (agreed/colluded) or 0 (disagreed/did not collude).
	Outcome int `json:"outcome"`
}

// IsPairwise reports whether the observation involves two workers.
func (o Observation) IsPairwise() bool {
	return o.Kind == KindAgreement || o.Kind == KindCollusion
}

// Validate checks that the observation is well-formed.
//
// Returns:
//   - error: ErrInvalidObservation wrapped with the failing field, nil if valid
func (o Observation) Validate() error {
	if o.Pool == "" {
		return fmt.Errorf("empty pool: %w", ErrInvalidObservation)
	}
	if o.WorkerA == "" {
		return fmt.Errorf("empty workerA: %w", ErrInvalidObservation)
	}

	switch o.Kind {
	case KindAgreement, KindCollusion:
		if o.WorkerB == "" {
			return fmt.Errorf("empty workerB for %s: %w", o.Kind, ErrInvalidObservation)
		}
		if o.Outcome != 0 && o.Outcome != 1 {
			return fmt.Errorf("outcome %d: %w", o.Outcome, ErrInvalidObservation)
		}
	case KindJoin, KindLeave:
	default:
		return fmt.Errorf("kind %q: %w", o.Kind, ErrInvalidObservation)
	}

	return nil
}
