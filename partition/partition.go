package partition

import (
	"fmt"
	"iter"
	"slices"

	"github.com/lccanon/simdeg/estimator"
	"github.com/lccanon/simdeg/internal/logger"
	"github.com/lccanon/simdeg/types"
)

// GroupID is an opaque handle to a live group. The zero value is NoGroup.
type GroupID uint64

// NoGroup is returned when no group exists, e.g. by Largest on an empty partition.
const NoGroup GroupID = 0

// Pair is an unordered pair of group handles with A <= B.
type Pair struct {
	A GroupID
	B GroupID
}

func pairOf(a, b GroupID) Pair {
	if a > b {
		a, b = b, a
	}

	return Pair{A: a, B: b}
}

// Has reports whether g is one side of the pair.
func (p Pair) Has(g GroupID) bool { return p.A == g || p.B == g }

// IsSelf reports whether the pair is a group with itself.
func (p Pair) IsSelf() bool { return p.A == p.B }

// Policy supplies the cell estimators a Partition creates on its own.
type Policy interface {
	// Fresh returns the estimator of a cell between groups with no shared evidence.
	Fresh() *estimator.Beta

	// Self returns the self-cell estimator of a new singleton.
	Self() *estimator.Beta

	// Merge combines the cells of two merged groups against a third group.
	// It must return an estimator that aliases neither input.
	Merge(a, b *estimator.Beta) *estimator.Beta
}

type group[E comparable] struct {
	members []E
}

// Partition groups elements of type E.
type Partition[E comparable] struct {
	policy Policy
	logger types.Logger
	debug  bool

	groups map[GroupID]*group[E]
	index  map[E]GroupID
	cells  map[Pair]*estimator.Beta
	nextID GroupID

	largest GroupID // NoGroup when invalidated
}

// Option configures a Partition.
type Option func(*options)

type options struct {
	logger types.Logger
	debug  bool
}

// WithLogger sets the logger used for topology changes. Defaults to a nop logger.
func WithLogger(l types.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDebug enables invariant assertions after every mutating call. A
// violation panics with an error wrapping ErrInvariantViolated.
func WithDebug(enabled bool) Option {
	return func(o *options) {
		o.debug = enabled
	}
}

// New creates an empty partition.
//
// Parameters:
//   - policy: Supplies fresh, self and merged cell estimators
//   - opts: Optional logger and debug settings
//
// Returns:
//   - *Partition[E]: Empty partition
//
// Example:
//
//	p := partition.New[string](engine.AgreementPolicy{}, partition.WithDebug(true))
//	p.AddAll([]string{"w1", "w2"})
func New[E comparable](policy Policy, opts ...Option) *Partition[E] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	return &Partition[E]{
		policy: policy,
		logger: logger.OrNop(o.logger),
		debug:  o.debug,
		groups: make(map[GroupID]*group[E]),
		index:  make(map[E]GroupID),
		cells:  make(map[Pair]*estimator.Beta),
	}
}

// Len returns the number of live groups.
func (p *Partition[E]) Len() int { return len(p.groups) }

// NumElements returns the number of elements currently grouped.
func (p *Partition[E]) NumElements() int { return len(p.index) }

// Contains reports whether e belongs to a live group.
func (p *Partition[E]) Contains(e E) bool {
	_, ok := p.index[e]

	return ok
}

// Alive reports whether g is a live group handle.
func (p *Partition[E]) Alive(g GroupID) bool {
	_, ok := p.groups[g]

	return ok
}

// Size returns the number of members of g, or 0 if g is not live.
func (p *Partition[E]) Size(g GroupID) int {
	if gr, ok := p.groups[g]; ok {
		return len(gr.members)
	}

	return 0
}

// Groups returns the live group handles in ascending order.
func (p *Partition[E]) Groups() []GroupID {
	ids := make([]GroupID, 0, len(p.groups))
	for id := range p.groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// Members returns a copy of the members of g in insertion order.
func (p *Partition[E]) Members(g GroupID) ([]E, error) {
	gr, ok := p.groups[g]
	if !ok {
		return nil, fmt.Errorf("group %d: %w", g, types.ErrNotFound)
	}

	return slices.Clone(gr.members), nil
}

// Group returns the handle of the group containing e.
//
// Returns:
//   - GroupID: Current group of e
//   - error: ErrNotFound if e was never added or has been removed
func (p *Partition[E]) Group(e E) (GroupID, error) {
	g, ok := p.index[e]
	if !ok {
		return NoGroup, fmt.Errorf("element %v: %w", e, types.ErrNotFound)
	}

	return g, nil
}

// GroupsOf returns the distinct groups intersecting elems, in order of first
// appearance.
//
// Returns:
//   - []GroupID: Distinct groups
//   - error: ErrNotFound if any element is unknown
func (p *Partition[E]) GroupsOf(elems []E) ([]GroupID, error) {
	ids := make([]GroupID, 0, len(elems))
	seen := make(map[GroupID]struct{}, len(elems))
	for _, e := range elems {
		g, err := p.Group(e)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		ids = append(ids, g)
	}

	return ids, nil
}

// Estimator returns the cell shared by g1 and g2. The returned estimator is the
// cell itself; samples recorded on it are recorded in the partition.
//
// Returns:
//   - *estimator.Beta: The shared cell
//   - error: ErrNotFound if either group is not live
func (p *Partition[E]) Estimator(g1, g2 GroupID) (*estimator.Beta, error) {
	if err := p.checkAlive(g1, g2); err != nil {
		return nil, err
	}

	return p.cells[pairOf(g1, g2)], nil
}

// SetEstimator replaces the cell shared by g1 and g2 with est. The partition
// takes ownership of est.
//
// Returns:
//   - error: ErrNotFound if either group is not live, ErrInvalidInput and
//     ErrInvalidRange if est does not range over exactly [0,1]
func (p *Partition[E]) SetEstimator(g1, g2 GroupID, est *estimator.Beta) error {
	if err := p.checkAlive(g1, g2); err != nil {
		return err
	}
	if est == nil || !est.IsUnitRange() {
		return fmt.Errorf("cell (%d,%d) needs a [0,1] estimator: %w: %w", g1, g2, types.ErrInvalidInput, types.ErrInvalidRange)
	}

	p.cells[pairOf(g1, g2)] = est

	return nil
}

// Cells iterates over every live cell. Each unordered pair is yielded once.
// The partition must not be mutated during iteration.
func (p *Partition[E]) Cells() iter.Seq2[Pair, *estimator.Beta] {
	return func(yield func(Pair, *estimator.Beta) bool) {
		for k, v := range p.cells {
			if !yield(k, v) {
				return
			}
		}
	}
}

func (p *Partition[E]) checkAlive(ids ...GroupID) error {
	for _, g := range ids {
		if _, ok := p.groups[g]; !ok {
			return fmt.Errorf("group %d: %w", g, types.ErrNotFound)
		}
	}

	return nil
}

func (p *Partition[E]) newGroup(members []E) GroupID {
	p.nextID++
	id := p.nextID
	p.groups[id] = &group[E]{members: members}
	for _, e := range members {
		p.index[e] = id
	}
	p.largest = NoGroup

	return id
}

// dropGroup deletes g and every cell of its row. Index entries are left to the caller.
func (p *Partition[E]) dropGroup(g GroupID) {
	for other := range p.groups {
		delete(p.cells, pairOf(g, other))
	}
	delete(p.groups, g)
	p.largest = NoGroup
}

// copyRow installs clones of from's cross cells as to's row, skipping the
// groups listed in skip. from's self-cell is not copied.
func (p *Partition[E]) copyRow(from, to GroupID, skip ...GroupID) {
	for other := range p.groups {
		if other == from || other == to || slices.Contains(skip, other) {
			continue
		}
		p.cells[pairOf(to, other)] = p.cells[pairOf(from, other)].Clone()
	}
}

// AddAll creates a singleton group for every element not yet present. Cells
// between a new singleton and every other group start from Policy.Fresh, and
// its self-cell from Policy.Self. Elements already present are ignored.
//
// Returns:
//   - []GroupID: Handles of the new singletons, in input order
func (p *Partition[E]) AddAll(elems []E) []GroupID {
	created := make([]GroupID, 0, len(elems))
	for _, e := range elems {
		if _, ok := p.index[e]; ok {
			continue
		}

		id := p.newGroup([]E{e})
		for other := range p.groups {
			if other == id {
				continue
			}
			p.cells[pairOf(id, other)] = p.policy.Fresh()
		}
		p.cells[pairOf(id, id)] = p.policy.Self()
		created = append(created, id)
	}

	if len(created) > 0 {
		p.logger.Debug("elements added", "count", len(created), "groups", len(p.groups))
	}
	p.assert("AddAll")

	return created
}

// RemoveAll removes elems from the partition. A group losing all its members
// is deleted; a group losing some members is replaced by a residual group
// with a new handle that inherits clones of the original row.
//
// Returns:
//   - error: ErrNotFound if any element is unknown, in which case nothing is removed
func (p *Partition[E]) RemoveAll(elems []E) error {
	removing := make(map[E]struct{}, len(elems))
	affected := make([]GroupID, 0)
	for _, e := range elems {
		g, ok := p.index[e]
		if !ok {
			return fmt.Errorf("remove element %v: %w", e, types.ErrNotFound)
		}
		if _, dup := removing[e]; dup {
			continue
		}
		removing[e] = struct{}{}
		if !slices.Contains(affected, g) {
			affected = append(affected, g)
		}
	}
	slices.Sort(affected)

	for _, g := range affected {
		old := p.groups[g]
		rest := make([]E, 0, len(old.members))
		for _, e := range old.members {
			if _, gone := removing[e]; gone {
				delete(p.index, e)
			} else {
				rest = append(rest, e)
			}
		}

		if len(rest) == 0 {
			p.dropGroup(g)
			p.logger.Debug("group removed", "group", g)

			continue
		}

		residual := p.newGroup(rest)
		p.copyRow(g, residual)
		p.cells[pairOf(residual, residual)] = p.cells[pairOf(g, g)].Clone()
		p.dropGroup(g)
		p.logger.Debug("group shrunk", "group", g, "residual", residual, "size", len(rest))
	}
	p.assert("RemoveAll")

	return nil
}

// Merge replaces g1 and g2 with their union. Each cross cell of the new
// group is Policy.Merge of the two original cells; its self-cell is the merge
// of both self-cells with the g1-g2 cell.
//
// Returns:
//   - GroupID: Handle of the union
//   - bool: false if g1 == g2 (no-op)
//   - error: ErrNotFound if either group is not live
func (p *Partition[E]) Merge(g1, g2 GroupID) (GroupID, bool, error) {
	if err := p.checkAlive(g1, g2); err != nil {
		return NoGroup, false, err
	}
	if g1 == g2 {
		return NoGroup, false, nil
	}

	left, right := p.groups[g1], p.groups[g2]
	members := make([]E, 0, len(left.members)+len(right.members))
	members = append(members, left.members...)
	members = append(members, right.members...)

	self := p.policy.Merge(
		p.policy.Merge(p.cells[pairOf(g1, g1)], p.cells[pairOf(g2, g2)]),
		p.cells[pairOf(g1, g2)],
	)

	merged := p.newGroup(members)
	for other := range p.groups {
		if other == g1 || other == g2 || other == merged {
			continue
		}
		p.cells[pairOf(merged, other)] = p.policy.Merge(p.cells[pairOf(g1, other)], p.cells[pairOf(g2, other)])
	}
	p.cells[pairOf(merged, merged)] = self

	p.dropGroup(g1)
	p.dropGroup(g2)
	p.logger.Debug("groups merged", "left", g1, "right", g2, "merged", merged, "size", len(members))
	p.assert("Merge")

	return merged, true, nil
}

// Split extracts e from g into a singleton. The singleton and the residual
// group both inherit clones of g's cross cells. The residual keeps a clone of
// g's self-cell, the singleton starts from Policy.Self, and the cell between
// them is a clone of g's self-cell.
//
// Returns:
//   - single: Handle of the singleton holding e
//   - residual: Handle of the group holding the rest of g
//   - ok: false if g has one member or does not contain e (no-op)
//   - err: ErrNotFound if g is not live
func (p *Partition[E]) Split(g GroupID, e E) (single, residual GroupID, ok bool, err error) {
	if err := p.checkAlive(g); err != nil {
		return NoGroup, NoGroup, false, err
	}

	old := p.groups[g]
	if len(old.members) == 1 || p.index[e] != g {
		return NoGroup, NoGroup, false, nil
	}

	rest := make([]E, 0, len(old.members)-1)
	for _, m := range old.members {
		if m != e {
			rest = append(rest, m)
		}
	}

	selfCell := p.cells[pairOf(g, g)]
	single = p.newGroup([]E{e})
	residual = p.newGroup(rest)

	p.copyRow(g, single, residual)
	p.copyRow(g, residual, single)
	p.cells[pairOf(single, single)] = p.policy.Self()
	p.cells[pairOf(residual, residual)] = selfCell.Clone()
	p.cells[pairOf(single, residual)] = selfCell.Clone()

	p.dropGroup(g)
	p.logger.Debug("element split", "group", g, "single", single, "residual", residual)
	p.assert("Split")

	return single, residual, true, nil
}

// Largest returns the live group with the most members. Ties go to the
// lowest handle. The result is cached until the next topology change.
// Returns NoGroup when the partition is empty.
func (p *Partition[E]) Largest() GroupID {
	if p.largest != NoGroup {
		return p.largest
	}

	best, bestSize := NoGroup, 0
	for id, gr := range p.groups {
		n := len(gr.members)
		if n > bestSize || (n == bestSize && id < best) {
			best, bestSize = id, n
		}
	}
	p.largest = best

	return best
}

// GeneralError returns the mean error across the largest group's row, or 0
// for an empty partition.
func (p *Partition[E]) GeneralError() float64 {
	l := p.Largest()
	if l == NoGroup {
		return 0
	}

	sum := 0.0
	for other := range p.groups {
		sum += p.cells[pairOf(l, other)].Error()
	}

	return sum / float64(len(p.groups))
}

func (p *Partition[E]) assert(op string) {
	if !p.debug {
		return
	}
	if err := p.CheckInvariants(); err != nil {
		p.logger.Error("partition invariant violated", "op", op, "error", err)
		panic(fmt.Errorf("after %s: %w", op, err))
	}
}
