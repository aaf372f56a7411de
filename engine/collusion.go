package engine

import (
	"fmt"

	"github.com/lccanon/simdeg/estimator"
	"github.com/lccanon/simdeg/partition"
	"github.com/lccanon/simdeg/types"
)

// KindCollusion labels collusion engine logs and metrics.
const KindCollusion = string(types.KindCollusion)

// CollusionEngine groups workers suspected of returning the same wrong results.
type CollusionEngine[W comparable] struct {
	base[W]

	policy CollusionPolicy

	// snapshot holds the estimate of every cell after the last readaptation
	// or membership change.
	snapshot map[partition.Pair]float64
}

// NewCollusion creates a collusion engine with no workers.
//
// Parameters:
//   - cfg: Thresholds, see DefaultCollusionConfig
//   - opts: Optional logger, metrics and debug settings
//
// Returns:
//   - *CollusionEngine[W]: Empty engine
//   - error: ErrInvalidConfig if cfg is invalid
func NewCollusion[W comparable](cfg Config, opts ...Option) (*CollusionEngine[W], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("collusion engine: %w", err)
	}

	policy, err := NewCollusionPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("collusion engine: %w", err)
	}

	return &CollusionEngine[W]{
		base:     newBase[W](KindCollusion, cfg, policy, opts),
		policy:   policy,
		snapshot: make(map[partition.Pair]float64),
	}, nil
}

// AddAllWorkers registers workers. New workers join the largest group, which
// is presumed honest until evidence says otherwise.
func (e *CollusionEngine[W]) AddAllWorkers(workers []W) {
	created := e.addAll(workers)
	if len(created) == 0 {
		return
	}

	largest := e.part.Largest()
	for _, g := range created {
		if g == largest {
			continue
		}
		merged, err := e.merge(largest, g)
		if err != nil {
			// Both handles are live by construction.
			e.logger.Error("collusion join failed", "error", err)

			continue
		}
		largest = merged
	}
	e.takeSnapshot()
}

// RemoveAllWorkers unregisters workers.
//
// Returns:
//   - error: ErrNotFound if a worker is unknown, in which case nothing is removed
func (e *CollusionEngine[W]) RemoveAllWorkers(workers []W) error {
	if err := e.removeAll(workers); err != nil {
		return err
	}
	e.takeSnapshot()

	return nil
}

// IncreaseCollusion records that w1 and w2 returned the same wrong result.
//
// Each worker still inside the largest group is first split out of it. The
// success is then recorded on the shared cell, which may merge the two
// groups. If the largest group is no longer the same group afterwards, the
// cells are readapted. Observations of a worker with itself are ignored.
//
// Returns:
//   - error: ErrNotFound if a worker is unknown
func (e *CollusionEngine[W]) IncreaseCollusion(w1, w2 W) error {
	if _, _, _, err := e.cellOf(w1, w2); err != nil {
		return err
	}
	if w1 == w2 {
		return nil
	}

	before := e.part.Largest()
	for _, w := range []W{w1, w2} {
		g, err := e.part.Group(w)
		if err != nil {
			return err
		}
		if g == e.part.Largest() {
			if _, _, err := e.split(g, w, "suspected"); err != nil {
				return err
			}
		}
	}

	cell, g1, g2, err := e.cellOf(w1, w2)
	if err != nil {
		return err
	}
	if err := e.record(cell, 1); err != nil {
		return err
	}
	if g1 != g2 && e.mergeable(cell) {
		if _, err := e.merge(g1, g2); err != nil {
			return err
		}
	}

	if e.part.Largest() != before {
		e.readapt()
	}

	return nil
}

// DecreaseCollusion records that w1 and w2 did not collude. It only adds a
// failure sample; the grouping is left unchanged.
//
// Returns:
//   - error: ErrNotFound if a worker is unknown
func (e *CollusionEngine[W]) DecreaseCollusion(w1, w2 W) error {
	cell, _, _, err := e.cellOf(w1, w2)
	if err != nil {
		return err
	}
	if w1 == w2 {
		return nil
	}

	return e.record(cell, 0)
}

// readapt recalibrates every cell (X,Y) with X != Y, not touching the largest
// group L, whose estimate did not move since the last snapshot:
//
//	cell(X,Y) = clamp01(cell(L,L) - cell(L,X) - cell(L,Y))
//
// Cells absent from the snapshot count as moved.
func (e *CollusionEngine[W]) readapt() {
	if !e.cfg.Readaptation {
		e.takeSnapshot()

		return
	}

	l := e.part.Largest()
	if l == partition.NoGroup {
		return
	}
	ll, err := e.part.Estimator(l, l)
	if err != nil {
		return
	}

	type update struct {
		pair partition.Pair
		est  *estimator.Beta
	}
	var updates []update

	for pair, cell := range e.part.Cells() {
		if pair.IsSelf() || pair.Has(l) {
			continue
		}
		prev, ok := e.snapshot[pair]
		if !ok || prev != cell.Estimate() {
			continue
		}

		lx, errX := e.part.Estimator(l, pair.A)
		ly, errY := e.part.Estimator(l, pair.B)
		if errX != nil || errY != nil {
			continue
		}
		est, err := ll.Subtract(lx).Subtract(ly).TruncateRange(0, 1)
		if err != nil {
			continue
		}
		updates = append(updates, update{pair: pair, est: est})
	}

	for _, u := range updates {
		if err := e.part.SetEstimator(u.pair.A, u.pair.B, u.est); err != nil {
			e.logger.Warn("readaptation skipped cell", "error", err)
		}
	}

	e.metrics.RecordReadaptation(len(updates))
	e.logger.Debug("collusion cells readapted", "largest", l, "size", e.part.Size(l), "cells", len(updates))
	e.takeSnapshot()
}

func (e *CollusionEngine[W]) takeSnapshot() {
	clear(e.snapshot)
	for pair, cell := range e.part.Cells() {
		e.snapshot[pair] = cell.Estimate()
	}
}

// CollusionLikelihood estimates the probability that all workers collude.
// Workers in a single group share its self-cell; otherwise the result is the
// minimum over the cells between their groups.
//
// Returns:
//   - *estimator.Beta: Independent estimator
//   - error: ErrInvalidInput for an empty worker list, ErrNotFound if a worker is unknown
func (e *CollusionEngine[W]) CollusionLikelihood(workers []W) (*estimator.Beta, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("collusion likelihood of no workers: %w", types.ErrInvalidInput)
	}
	ids, err := e.part.GroupsOf(workers)
	if err != nil {
		return nil, err
	}

	if len(ids) == 1 {
		self, err := e.part.Estimator(ids[0], ids[0])
		if err != nil {
			return nil, err
		}

		return self.Clone(), nil
	}

	var result *estimator.Beta
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			cell, err := e.part.Estimator(ids[i], ids[j])
			if err != nil {
				return nil, err
			}
			if result == nil {
				result = cell.Clone()
			} else {
				result = result.Min(cell)
			}
		}
	}

	return result, nil
}

// CollusionLikelihoodWith estimates, for each candidate, the probability that
// it colludes with worker.
//
// Returns:
//   - map[W]*estimator.Beta: Independent estimator per candidate
//   - error: ErrNotFound if a worker is unknown
func (e *CollusionEngine[W]) CollusionLikelihoodWith(worker W, candidates []W) (map[W]*estimator.Beta, error) {
	g, err := e.part.Group(worker)
	if err != nil {
		return nil, err
	}

	out := make(map[W]*estimator.Beta, len(candidates))
	for _, c := range candidates {
		gc, err := e.part.Group(c)
		if err != nil {
			return nil, err
		}
		cell, err := e.part.Estimator(g, gc)
		if err != nil {
			return nil, err
		}
		out[c] = cell.Clone()
	}

	return out, nil
}

// ColludersFraction estimates the fraction of workers outside the largest
// group, with the general error of the partition as its error.
func (e *CollusionEngine[W]) ColludersFraction() *estimator.Beta {
	n := e.part.NumElements()
	if n == 0 {
		return e.policy.Fresh()
	}

	outside := float64(n-e.part.Size(e.part.Largest())) / float64(n)
	est, err := e.policy.Fresh().CloneWithError(outside, e.GeneralError())
	if err != nil {
		return e.policy.Fresh()
	}

	return est
}

// Collusions returns clones of the cells between the largest group (row and
// column 0) and the distinct groups of workers (1..n), pairwise.
//
// Returns:
//   - [][]*estimator.Beta: Square table of size n+1
//   - error: ErrNotFound if a worker is unknown
func (e *CollusionEngine[W]) Collusions(workers []W) ([][]*estimator.Beta, error) {
	return e.table(workers)
}
