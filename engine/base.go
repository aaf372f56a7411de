package engine

import (
	"fmt"

	"github.com/lccanon/simdeg/estimator"
	"github.com/lccanon/simdeg/internal/logger"
	"github.com/lccanon/simdeg/internal/metrics"
	"github.com/lccanon/simdeg/partition"
	"github.com/lccanon/simdeg/types"
)

// base holds what both engines share: the partition, the thresholds and the
// ambient collaborators.
type base[W comparable] struct {
	kind    string
	cfg     Config
	part    *partition.Partition[W]
	logger  types.Logger
	metrics types.MetricsCollector
}

func newBase[W comparable](kind string, cfg Config, policy partition.Policy, opts []Option) base[W] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	l := logger.OrNop(o.logger)

	return base[W]{
		kind:    kind,
		cfg:     cfg,
		part:    partition.New[W](policy, partition.WithLogger(l), partition.WithDebug(o.debug)),
		logger:  l,
		metrics: metrics.OrNop(o.metrics),
	}
}

// Partition exposes the underlying partition for read-only inspection.
func (b *base[W]) Partition() *partition.Partition[W] { return b.part }

// Config returns the engine thresholds.
func (b *base[W]) Config() Config { return b.cfg }

// NumWorkers returns the number of registered workers.
func (b *base[W]) NumWorkers() int { return b.part.NumElements() }

// Groups returns the members of every distinct group intersecting workers.
//
// Returns:
//   - [][]W: Members per group, groups in order of first appearance
//   - error: ErrNotFound if a worker is unknown
func (b *base[W]) Groups(workers []W) ([][]W, error) {
	ids, err := b.part.GroupsOf(workers)
	if err != nil {
		return nil, err
	}

	return b.membersOf(ids), nil
}

// AllGroups returns the members of every live group, groups in handle order.
func (b *base[W]) AllGroups() [][]W {
	return b.membersOf(b.part.Groups())
}

// LargestGroup returns the members of the reference group, or nil when no
// worker is registered.
func (b *base[W]) LargestGroup() []W {
	l := b.part.Largest()
	if l == partition.NoGroup {
		return nil
	}
	members, _ := b.part.Members(l)

	return members
}

// GeneralError returns the mean error across the largest group's row.
func (b *base[W]) GeneralError() float64 {
	return b.part.GeneralError()
}

// Estimate returns a copy of the cell shared by the groups of w1 and w2.
//
// Returns:
//   - *estimator.Beta: Independent copy of the cell
//   - error: ErrNotFound if a worker is unknown
func (b *base[W]) Estimate(w1, w2 W) (*estimator.Beta, error) {
	cell, _, _, err := b.cellOf(w1, w2)
	if err != nil {
		return nil, err
	}

	return cell.Clone(), nil
}

// table returns clones of the cells between the largest group (index 0) and
// the distinct groups of workers (indexes 1..n).
func (b *base[W]) table(workers []W) ([][]*estimator.Beta, error) {
	ids, err := b.part.GroupsOf(workers)
	if err != nil {
		return nil, err
	}

	heads := append([]partition.GroupID{b.part.Largest()}, ids...)
	out := make([][]*estimator.Beta, len(heads))
	for i, gi := range heads {
		out[i] = make([]*estimator.Beta, len(heads))
		for j, gj := range heads {
			cell, err := b.part.Estimator(gi, gj)
			if err != nil {
				return nil, err
			}
			out[i][j] = cell.Clone()
		}
	}

	return out, nil
}

func (b *base[W]) membersOf(ids []partition.GroupID) [][]W {
	out := make([][]W, 0, len(ids))
	for _, id := range ids {
		members, err := b.part.Members(id)
		if err != nil {
			continue
		}
		out = append(out, members)
	}

	return out
}

// cellOf resolves the groups of w1 and w2 and their shared cell.
func (b *base[W]) cellOf(w1, w2 W) (*estimator.Beta, partition.GroupID, partition.GroupID, error) {
	g1, err := b.part.Group(w1)
	if err != nil {
		return nil, partition.NoGroup, partition.NoGroup, err
	}
	g2, err := b.part.Group(w2)
	if err != nil {
		return nil, partition.NoGroup, partition.NoGroup, err
	}
	cell, err := b.part.Estimator(g1, g2)
	if err != nil {
		return nil, partition.NoGroup, partition.NoGroup, err
	}

	return cell, g1, g2, nil
}

// record ingests one sample on cell.
func (b *base[W]) record(cell *estimator.Beta, bit int) error {
	if err := cell.SetSample(bit); err != nil {
		return fmt.Errorf("%s observation: %w", b.kind, err)
	}
	b.metrics.RecordObservation(b.kind, bit)

	return nil
}

// mergeable reports whether a cross cell is high and precise enough to merge.
func (b *base[W]) mergeable(cell *estimator.Beta) bool {
	return cell.Estimate() > b.cfg.MergeThreshold && cell.Error() < b.cfg.ErrorTolerance
}

func (b *base[W]) merge(g1, g2 partition.GroupID) (partition.GroupID, error) {
	merged, ok, err := b.part.Merge(g1, g2)
	if err != nil || !ok {
		return merged, err
	}
	size := b.part.Size(merged)
	b.metrics.RecordMerge(b.kind, size)
	b.metrics.RecordGroupCount(b.kind, b.part.Len())
	b.logger.Debug("groups merged", "kind", b.kind, "size", size, "groups", b.part.Len())

	return merged, nil
}

func (b *base[W]) split(g partition.GroupID, w W, reason string) (single, residual partition.GroupID, err error) {
	single, residual, ok, err := b.part.Split(g, w)
	if err != nil || !ok {
		return single, residual, err
	}
	b.metrics.RecordSplit(b.kind, reason)
	b.metrics.RecordGroupCount(b.kind, b.part.Len())
	b.logger.Debug("worker split", "kind", b.kind, "worker", w, "reason", reason, "groups", b.part.Len())

	return single, residual, nil
}

func (b *base[W]) addAll(workers []W) []partition.GroupID {
	created := b.part.AddAll(workers)
	b.metrics.RecordGroupCount(b.kind, b.part.Len())

	return created
}

func (b *base[W]) removeAll(workers []W) error {
	if err := b.part.RemoveAll(workers); err != nil {
		return err
	}
	b.metrics.RecordGroupCount(b.kind, b.part.Len())
	b.logger.Debug("workers removed", "kind", b.kind, "count", len(workers), "groups", b.part.Len())

	return nil
}
