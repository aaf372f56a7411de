package partition

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lccanon/simdeg/estimator"
	"github.com/lccanon/simdeg/internal/logger"
	"github.com/lccanon/simdeg/types"
)

// evidencePolicy merges cells parameter-wise and treats singletons as
// certainly identical to themselves.
type evidencePolicy struct{}

func (evidencePolicy) Fresh() *estimator.Beta { return estimator.NewUniform() }

func (evidencePolicy) Self() *estimator.Beta {
	b, err := estimator.NewUniform().CloneWithError(1, 0)
	if err != nil {
		panic(err)
	}

	return b
}

func (evidencePolicy) Merge(a, b *estimator.Beta) *estimator.Beta { return a.Merge(b) }

func newTestPartition(t *testing.T) *Partition[string] {
	t.Helper()

	return New[string](evidencePolicy{}, WithLogger(logger.NewTest(t)), WithDebug(true))
}

func mustHold(t *testing.T, p *Partition[string]) {
	t.Helper()
	require.NoError(t, p.CheckInvariants())
}

func mustGroup(t *testing.T, p *Partition[string], e string) GroupID {
	t.Helper()
	g, err := p.Group(e)
	require.NoError(t, err)

	return g
}

func mustCell(t *testing.T, p *Partition[string], a, b GroupID) *estimator.Beta {
	t.Helper()
	est, err := p.Estimator(a, b)
	require.NoError(t, err)

	return est
}

func TestPartition_AddAll(t *testing.T) {
	p := newTestPartition(t)

	created := p.AddAll([]string{"a", "b", "c", "a"})
	mustHold(t, p)
	require.Len(t, created, 3)
	require.Equal(t, 3, p.Len())
	require.Equal(t, 3, p.NumElements())

	a, b := mustGroup(t, p, "a"), mustGroup(t, p, "b")
	require.Greater(t, mustCell(t, p, a, a).Estimate(), 0.9999)
	require.InDelta(t, 0.5, mustCell(t, p, a, b).Estimate(), 1e-12)

	t.Run("existing elements are ignored", func(t *testing.T) {
		require.Empty(t, p.AddAll([]string{"b"}))
		require.Equal(t, b, mustGroup(t, p, "b"))
	})

	t.Run("new singletons get fresh cells with existing groups", func(t *testing.T) {
		require.NoError(t, mustCell(t, p, a, b).SetSample(1))
		p.AddAll([]string{"d"})
		mustHold(t, p)

		d := mustGroup(t, p, "d")
		require.Zero(t, mustCell(t, p, a, d).Samples())
		require.Equal(t, 1, mustCell(t, p, a, b).Samples())
	})
}

func TestPartition_Group(t *testing.T) {
	p := newTestPartition(t)
	p.AddAll([]string{"a"})

	_, err := p.Group("zz")
	require.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, p.RemoveAll([]string{"a"}))
	_, err = p.Group("a")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestPartition_GroupsOf(t *testing.T) {
	p := newTestPartition(t)
	p.AddAll([]string{"a", "b", "c"})
	ab, _, err := p.Merge(mustGroup(t, p, "a"), mustGroup(t, p, "b"))
	require.NoError(t, err)

	ids, err := p.GroupsOf([]string{"c", "a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, []GroupID{mustGroup(t, p, "c"), ab}, ids)

	_, err = p.GroupsOf([]string{"a", "nope"})
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestPartition_EstimatorSymmetry(t *testing.T) {
	p := newTestPartition(t)
	p.AddAll([]string{"a", "b", "c", "d"})
	_, _, err := p.Merge(mustGroup(t, p, "a"), mustGroup(t, p, "c"))
	require.NoError(t, err)

	for _, g := range p.Groups() {
		for _, h := range p.Groups() {
			require.Same(t, mustCell(t, p, g, h), mustCell(t, p, h, g))
		}
	}
}

func TestPartition_SetEstimator(t *testing.T) {
	p := newTestPartition(t)
	p.AddAll([]string{"a", "b"})
	a, b := mustGroup(t, p, "a"), mustGroup(t, p, "b")

	t.Run("replaces the shared cell", func(t *testing.T) {
		est, err := estimator.NewWithPrior(0.2, 0.1)
		require.NoError(t, err)
		require.NoError(t, p.SetEstimator(b, a, est))
		require.Same(t, est, mustCell(t, p, a, b))
		mustHold(t, p)
	})

	t.Run("rejects other ranges without mutating", func(t *testing.T) {
		before := mustCell(t, p, a, b)
		est, err := estimator.New(estimator.WithRange(-1, 1))
		require.NoError(t, err)

		err = p.SetEstimator(a, b, est)
		require.ErrorIs(t, err, types.ErrInvalidInput)
		require.ErrorIs(t, err, types.ErrInvalidRange)
		require.Same(t, before, mustCell(t, p, a, b))
	})

	t.Run("rejects retired groups", func(t *testing.T) {
		err := p.SetEstimator(a, GroupID(999), estimator.NewUniform())
		require.ErrorIs(t, err, types.ErrNotFound)

		_, err = p.Estimator(GroupID(999), a)
		require.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestPartition_Merge(t *testing.T) {
	p := newTestPartition(t)
	p.AddAll([]string{"a", "b", "c"})
	a, b, c := mustGroup(t, p, "a"), mustGroup(t, p, "b"), mustGroup(t, p, "c")

	for range 5 {
		require.NoError(t, mustCell(t, p, a, c).SetSample(1))
	}
	for range 3 {
		require.NoError(t, mustCell(t, p, b, c).SetSample(0))
	}

	t.Run("merging a group with itself is a no-op", func(t *testing.T) {
		fp := p.Fingerprint()
		g, ok, err := p.Merge(a, a)
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, NoGroup, g)
		require.Equal(t, fp, p.Fingerprint())
		require.True(t, p.Alive(a))
	})

	ab, ok, err := p.Merge(a, b)
	require.NoError(t, err)
	require.True(t, ok)
	mustHold(t, p)

	t.Run("retires both inputs", func(t *testing.T) {
		require.False(t, p.Alive(a))
		require.False(t, p.Alive(b))
		require.Equal(t, 2, p.Len())
		require.Equal(t, 2, p.Size(ab))
		require.Equal(t, ab, mustGroup(t, p, "a"))
		require.Equal(t, ab, mustGroup(t, p, "b"))

		members, err := p.Members(ab)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, members)
	})

	t.Run("combines the cross cells", func(t *testing.T) {
		cross := mustCell(t, p, ab, c)
		alpha, beta := cross.Shape()
		// max(6,1)=6, max(1,4)=4, rescaled to 8 samples + 2
		require.InDelta(t, 10.0, alpha+beta, 1e-9)
		require.InDelta(t, 0.6, cross.Estimate(), 1e-9)
		require.Equal(t, 8, cross.Samples())
	})

	t.Run("self cell stays certain", func(t *testing.T) {
		require.Greater(t, mustCell(t, p, ab, ab).Estimate(), 0.99)
	})

	t.Run("retired groups are not found", func(t *testing.T) {
		_, _, err := p.Merge(a, c)
		require.ErrorIs(t, err, types.ErrNotFound)
		mustHold(t, p)
	})
}

func TestPartition_Split(t *testing.T) {
	p := newTestPartition(t)
	p.AddAll([]string{"a", "b", "c", "x"})
	g1, _, err := p.Merge(mustGroup(t, p, "a"), mustGroup(t, p, "b"))
	require.NoError(t, err)
	abc, _, err := p.Merge(g1, mustGroup(t, p, "c"))
	require.NoError(t, err)
	x := mustGroup(t, p, "x")
	require.NoError(t, mustCell(t, p, abc, x).SetSample(0))

	t.Run("element outside the group is a no-op", func(t *testing.T) {
		fp := p.Fingerprint()
		_, _, ok, err := p.Split(abc, "x")
		require.NoError(t, err)
		require.False(t, ok)
		_, _, ok, err = p.Split(abc, "unknown")
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, fp, p.Fingerprint())
		require.True(t, p.Alive(abc))
	})

	t.Run("singleton group is a no-op", func(t *testing.T) {
		_, _, ok, err := p.Split(x, "x")
		require.NoError(t, err)
		require.False(t, ok)
		require.True(t, p.Alive(x))
	})

	oldCross := mustCell(t, p, abc, x)
	oldSelf := mustCell(t, p, abc, abc)

	single, residual, ok, err := p.Split(abc, "b")
	require.NoError(t, err)
	require.True(t, ok)
	mustHold(t, p)

	t.Run("extracts the element", func(t *testing.T) {
		require.False(t, p.Alive(abc))
		require.Equal(t, single, mustGroup(t, p, "b"))
		require.Equal(t, residual, mustGroup(t, p, "a"))
		require.Equal(t, residual, mustGroup(t, p, "c"))
		require.Equal(t, 1, p.Size(single))
		require.Equal(t, 2, p.Size(residual))
	})

	t.Run("rows are independent clones", func(t *testing.T) {
		sx := mustCell(t, p, single, x)
		rx := mustCell(t, p, residual, x)
		require.NotSame(t, oldCross, sx)
		require.NotSame(t, oldCross, rx)
		require.NotSame(t, sx, rx)
		require.Equal(t, oldCross.Estimate(), sx.Estimate())
		require.Equal(t, oldCross.Estimate(), rx.Estimate())

		require.NoError(t, sx.SetSample(1))
		require.Equal(t, oldCross.Samples(), rx.Samples())
	})

	t.Run("self cells", func(t *testing.T) {
		require.Equal(t, oldSelf.Estimate(), mustCell(t, p, residual, residual).Estimate())
		require.Equal(t, oldSelf.Estimate(), mustCell(t, p, single, residual).Estimate())
		require.Greater(t, mustCell(t, p, single, single).Estimate(), 0.9999)
	})

	t.Run("retired group is not found", func(t *testing.T) {
		_, _, _, err := p.Split(abc, "a")
		require.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestPartition_RemoveAll(t *testing.T) {
	t.Run("round trip restores the previous state", func(t *testing.T) {
		p := newTestPartition(t)
		p.AddAll([]string{"x", "y"})
		_, _, err := p.Merge(mustGroup(t, p, "x"), mustGroup(t, p, "y"))
		require.NoError(t, err)
		before := p.Fingerprint()

		added := []string{"a", "b", "c"}
		p.AddAll(added)
		_, _, err = p.Merge(mustGroup(t, p, "a"), mustGroup(t, p, "x"))
		require.NoError(t, err)
		_, _, err = p.Merge(mustGroup(t, p, "b"), mustGroup(t, p, "c"))
		require.NoError(t, err)

		require.NoError(t, p.RemoveAll(added))
		mustHold(t, p)
		require.Equal(t, before, p.Fingerprint())
		require.Equal(t, 1, p.Len())
		require.Equal(t, 2, p.NumElements())
	})

	t.Run("round trip from empty leaves nothing behind", func(t *testing.T) {
		p := newTestPartition(t)
		empty := p.Fingerprint()
		all := []string{"a", "b", "c", "d"}
		p.AddAll(all)
		_, _, err := p.Merge(mustGroup(t, p, "a"), mustGroup(t, p, "d"))
		require.NoError(t, err)

		require.NoError(t, p.RemoveAll(all))
		mustHold(t, p)
		require.Zero(t, p.Len())
		require.Zero(t, p.NumElements())
		require.Equal(t, NoGroup, p.Largest())
		require.Equal(t, empty, p.Fingerprint())
	})

	t.Run("residual groups inherit cloned rows", func(t *testing.T) {
		p := newTestPartition(t)
		p.AddAll([]string{"a", "b", "c", "d", "e"})
		ab, _, err := p.Merge(mustGroup(t, p, "a"), mustGroup(t, p, "b"))
		require.NoError(t, err)
		cd, _, err := p.Merge(mustGroup(t, p, "c"), mustGroup(t, p, "d"))
		require.NoError(t, err)
		for range 4 {
			require.NoError(t, mustCell(t, p, ab, cd).SetSample(1))
		}
		cross := mustCell(t, p, ab, cd).Estimate()

		require.NoError(t, p.RemoveAll([]string{"b", "d"}))
		mustHold(t, p)
		require.False(t, p.Alive(ab))
		require.False(t, p.Alive(cd))

		a, c := mustGroup(t, p, "a"), mustGroup(t, p, "c")
		require.InDelta(t, cross, mustCell(t, p, a, c).Estimate(), 1e-12)
		require.Equal(t, 3, p.Len())
	})

	t.Run("unknown elements abort without mutation", func(t *testing.T) {
		p := newTestPartition(t)
		p.AddAll([]string{"a", "b"})
		fp := p.Fingerprint()

		err := p.RemoveAll([]string{"a", "ghost"})
		require.ErrorIs(t, err, types.ErrNotFound)
		require.Equal(t, fp, p.Fingerprint())
		require.True(t, p.Contains("a"))
	})
}

func TestPartition_Largest(t *testing.T) {
	p := newTestPartition(t)
	require.Equal(t, NoGroup, p.Largest())

	p.AddAll([]string{"a", "b", "c", "d"})
	require.Equal(t, mustGroup(t, p, "a"), p.Largest(), "ties go to the lowest handle")

	cd, _, err := p.Merge(mustGroup(t, p, "c"), mustGroup(t, p, "d"))
	require.NoError(t, err)
	require.Equal(t, cd, p.Largest())
	require.Equal(t, cd, p.Largest())

	ab, _, err := p.Merge(mustGroup(t, p, "a"), mustGroup(t, p, "b"))
	require.NoError(t, err)
	require.Equal(t, cd, p.Largest())

	abcd, _, err := p.Merge(ab, cd)
	require.NoError(t, err)
	require.Equal(t, abcd, p.Largest())
	mustHold(t, p)
}

func TestPartition_GeneralError(t *testing.T) {
	p := newTestPartition(t)
	require.Zero(t, p.GeneralError())

	p.AddAll([]string{"a", "b"})
	a, b := mustGroup(t, p, "a"), mustGroup(t, p, "b")
	want := (mustCell(t, p, a, a).Error() + mustCell(t, p, a, b).Error()) / 2
	require.InDelta(t, want, p.GeneralError(), 1e-12)
	require.InDelta(t, 0.2375, p.GeneralError(), 1e-3)
}

func TestPartition_Fingerprint(t *testing.T) {
	build := func(order []string, pairs [][2]string) *Partition[string] {
		p := newTestPartition(t)
		p.AddAll(order)
		for _, pr := range pairs {
			_, _, err := p.Merge(mustGroup(t, p, pr[0]), mustGroup(t, p, pr[1]))
			require.NoError(t, err)
		}

		return p
	}

	p1 := build([]string{"a", "b", "c", "d"}, [][2]string{{"a", "b"}, {"c", "d"}})
	p2 := build([]string{"d", "c", "b", "a"}, [][2]string{{"d", "c"}, {"b", "a"}})
	p3 := build([]string{"a", "b", "c", "d"}, [][2]string{{"a", "c"}, {"b", "d"}})

	require.Equal(t, p1.Fingerprint(), p2.Fingerprint())
	require.NotEqual(t, p1.Fingerprint(), p3.Fingerprint())
}

func TestPartition_CheckInvariants(t *testing.T) {
	t.Run("detects a missing cell", func(t *testing.T) {
		p := New[string](evidencePolicy{})
		p.AddAll([]string{"a", "b"})
		delete(p.cells, pairOf(mustGroup(t, p, "a"), mustGroup(t, p, "b")))
		require.ErrorIs(t, p.CheckInvariants(), types.ErrInvariantViolated)
	})

	t.Run("detects a stale index entry", func(t *testing.T) {
		p := New[string](evidencePolicy{})
		p.AddAll([]string{"a", "b"})
		p.index["a"] = mustGroup(t, p, "b")
		require.ErrorIs(t, p.CheckInvariants(), types.ErrInvariantViolated)
	})

	t.Run("debug mode panics on violation", func(t *testing.T) {
		p := New[string](evidencePolicy{}, WithDebug(true))
		p.AddAll([]string{"a", "b"})
		p.index["ghost"] = mustGroup(t, p, "a")
		require.Panics(t, func() { p.AddAll([]string{"c"}) })
	})
}

// TestPartition_RandomOperations drives a long random sequence of mutations
// and checks the invariants after every one of them.
func TestPartition_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	p := New[int](evidencePolicy{})

	for step := range 2000 {
		switch op := rng.IntN(10); {
		case op < 3:
			batch := make([]int, 1+rng.IntN(3))
			for i := range batch {
				batch[i] = rng.IntN(40)
			}
			p.AddAll(batch)
		case op < 6:
			if p.Len() < 2 {
				continue
			}
			ids := p.Groups()
			g1, g2 := ids[rng.IntN(len(ids))], ids[rng.IntN(len(ids))]
			_, merged, err := p.Merge(g1, g2)
			require.NoError(t, err)
			require.Equal(t, g1 != g2, merged)
		case op < 8:
			ids := p.Groups()
			if len(ids) == 0 {
				continue
			}
			g := ids[rng.IntN(len(ids))]
			members, err := p.Members(g)
			require.NoError(t, err)
			_, _, split, err := p.Split(g, members[rng.IntN(len(members))])
			require.NoError(t, err)
			require.Equal(t, len(members) > 1, split)
		default:
			if p.NumElements() == 0 {
				continue
			}
			ids := p.Groups()
			members, err := p.Members(ids[rng.IntN(len(ids))])
			require.NoError(t, err)
			require.NoError(t, p.RemoveAll(members[:1+rng.IntN(len(members))]))
		}

		require.NoError(t, p.CheckInvariants(), "step %d", step)
		if l := p.Largest(); l != NoGroup {
			for _, g := range p.Groups() {
				require.LessOrEqual(t, p.Size(g), p.Size(l))
			}
		}
	}
}
