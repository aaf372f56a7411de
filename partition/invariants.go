package partition

import (
	"fmt"

	"github.com/lccanon/simdeg/types"
)

// CheckInvariants verifies the partition bookkeeping:
//   - every live group is non-empty and its members resolve to it
//   - the reverse index holds exactly the members of live groups
//   - every pair of live groups, self-pairs included, owns a [0,1] cell
//   - no cell refers to a retired group
//
// Symmetry needs no check since both orders share one key.
//
// Returns:
//   - error: ErrInvariantViolated describing the first violation, nil otherwise
func (p *Partition[E]) CheckInvariants() error {
	total := 0
	for id, gr := range p.groups {
		if len(gr.members) == 0 {
			return fmt.Errorf("group %d is empty: %w", id, types.ErrInvariantViolated)
		}
		for _, e := range gr.members {
			if got, ok := p.index[e]; !ok || got != id {
				return fmt.Errorf("element %v of group %d resolves to %d: %w", e, id, got, types.ErrInvariantViolated)
			}
		}
		total += len(gr.members)
	}
	if total != len(p.index) {
		return fmt.Errorf("index holds %d elements, groups hold %d: %w", len(p.index), total, types.ErrInvariantViolated)
	}

	for a := range p.groups {
		for b := range p.groups {
			if a > b {
				continue
			}
			est, ok := p.cells[pairOf(a, b)]
			if !ok || est == nil {
				return fmt.Errorf("missing cell (%d,%d): %w", a, b, types.ErrInvariantViolated)
			}
			if !est.IsUnitRange() {
				return fmt.Errorf("cell (%d,%d) ranges over [%v,%v]: %w", a, b, est.Lower(), est.Upper(), types.ErrInvariantViolated)
			}
		}
	}

	n := len(p.groups)
	if want := n * (n + 1) / 2; len(p.cells) != want {
		return fmt.Errorf("%d cells for %d groups, want %d: %w", len(p.cells), n, want, types.ErrInvariantViolated)
	}

	if p.largest != NoGroup {
		if _, ok := p.groups[p.largest]; !ok {
			return fmt.Errorf("cached largest group %d is retired: %w", p.largest, types.ErrInvariantViolated)
		}
	}

	return nil
}
