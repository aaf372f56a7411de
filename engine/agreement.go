package engine

import (
	"fmt"

	"github.com/lccanon/simdeg/estimator"
	"github.com/lccanon/simdeg/partition"
	"github.com/lccanon/simdeg/types"
)

// KindAgreement labels agreement engine logs and metrics.
const KindAgreement = string(types.KindAgreement)

// AgreementEngine groups workers that return the same results.
type AgreementEngine[W comparable] struct {
	base[W]

	policy AgreementPolicy
}

// NewAgreement creates an agreement engine with no workers.
//
// Parameters:
//   - cfg: Thresholds, see DefaultAgreementConfig
//   - opts: Optional logger, metrics and debug settings
//
// Returns:
//   - *AgreementEngine[W]: Empty engine
//   - error: ErrInvalidConfig if cfg is invalid
//
// Example:
//
//	eng, err := engine.NewAgreement[string](engine.DefaultAgreementConfig())
//	eng.AddAllWorkers([]string{"w1", "w2"})
//	err = eng.IncreaseAgreement("w1", "w2")
func NewAgreement[W comparable](cfg Config, opts ...Option) (*AgreementEngine[W], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agreement engine: %w", err)
	}

	policy, err := NewAgreementPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("agreement engine: %w", err)
	}

	return &AgreementEngine[W]{
		base:   newBase[W](KindAgreement, cfg, policy, opts),
		policy: policy,
	}, nil
}

// AddAllWorkers registers workers as singletons. Known workers are ignored.
func (e *AgreementEngine[W]) AddAllWorkers(workers []W) {
	e.addAll(workers)
}

// RemoveAllWorkers unregisters workers.
//
// Returns:
//   - error: ErrNotFound if a worker is unknown, in which case nothing is removed
func (e *AgreementEngine[W]) RemoveAllWorkers(workers []W) error {
	return e.removeAll(workers)
}

// IncreaseAgreement records that w1 and w2 returned the same result. When
// they are in different groups whose shared cell becomes both high and
// precise enough, the two groups merge. Observations of a worker with itself
// are ignored.
//
// Returns:
//   - error: ErrNotFound if a worker is unknown
func (e *AgreementEngine[W]) IncreaseAgreement(w1, w2 W) error {
	cell, g1, g2, err := e.cellOf(w1, w2)
	if err != nil {
		return err
	}
	if w1 == w2 {
		return nil
	}

	if err := e.record(cell, 1); err != nil {
		return err
	}

	if g1 != g2 && e.mergeable(cell) {
		if _, err := e.merge(g1, g2); err != nil {
			return err
		}
	}

	return nil
}

// DecreaseAgreement records that w1 and w2 returned different results. In
// different groups this is a failure sample on their shared cell. In the
// same group it contradicts the grouping: both workers are split out into
// singletons whose shared cell holds a single failure.
//
// Returns:
//   - error: ErrNotFound if a worker is unknown
func (e *AgreementEngine[W]) DecreaseAgreement(w1, w2 W) error {
	cell, g1, g2, err := e.cellOf(w1, w2)
	if err != nil {
		return err
	}
	if w1 == w2 {
		return nil
	}

	if g1 != g2 {
		return e.record(cell, 0)
	}

	return e.forceSplit(g1, w1, w2)
}

func (e *AgreementEngine[W]) forceSplit(g partition.GroupID, w1, w2 W) error {
	s1, residual, err := e.split(g, w1, "contradiction")
	if err != nil {
		return err
	}
	s2, _, err := e.split(residual, w2, "contradiction")
	if err != nil {
		return err
	}
	if s2 == partition.NoGroup {
		// w2 was the only member left.
		s2 = residual
	}

	cell := e.policy.Fresh()
	if err := e.record(cell, 0); err != nil {
		return err
	}
	if err := e.part.SetEstimator(s1, s2, cell); err != nil {
		return err
	}
	e.logger.Debug("agreement contradiction", "w1", w1, "w2", w2, "groups", e.part.Len())

	return nil
}

// Agreements returns clones of the cells between the largest group (row and
// column 0) and the distinct groups of workers (1..n), pairwise.
//
// Returns:
//   - [][]*estimator.Beta: Square table of size n+1
//   - error: ErrNotFound if a worker is unknown
func (e *AgreementEngine[W]) Agreements(workers []W) ([][]*estimator.Beta, error) {
	return e.table(workers)
}
