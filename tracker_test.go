package simdeg

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lccanon/simdeg/internal/logger"
)

func newTestTracker(t *testing.T, workers ...string) *Tracker {
	t.Helper()

	tr, err := NewTracker(DefaultConfig(), WithLogger(logger.NewTest(t)), WithDebug(true))
	require.NoError(t, err)
	tr.AddWorkers(workers)

	return tr
}

func pairObservation(kind ObservationKind, a, b string, outcome int) Observation {
	return Observation{Pool: "pool", Kind: kind, WorkerA: a, WorkerB: b, Outcome: outcome}
}

func TestNewTracker(t *testing.T) {
	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Agreement.ErrorTolerance = 0
		_, err := NewTracker(cfg)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("registers workers with both engines", func(t *testing.T) {
		tr := newTestTracker(t, "a", "b", "c")
		require.Equal(t, 3, tr.NumWorkers())

		agreement, err := tr.Snapshot(KindAgreement)
		require.NoError(t, err)
		require.Len(t, agreement.Groups, 3)

		collusion, err := tr.Snapshot(KindCollusion)
		require.NoError(t, err)
		require.Len(t, collusion.Groups, 1)
		require.Equal(t, []string{"a", "b", "c"}, collusion.Largest)
	})
}

func TestTracker_Apply(t *testing.T) {
	tr := newTestTracker(t, "a", "b", "c", "d", "e", "f")

	t.Run("agreement observations merge consistent workers", func(t *testing.T) {
		before, err := tr.Snapshot(KindAgreement)
		require.NoError(t, err)

		for range 99 {
			require.NoError(t, tr.Apply(pairObservation(KindAgreement, "a", "b", 1)))
		}

		groups, err := tr.Groups(KindAgreement, []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, groups, 1)
		require.ElementsMatch(t, []string{"a", "b"}, groups[0])

		after, err := tr.Snapshot(KindAgreement)
		require.NoError(t, err)
		require.NotEqual(t, before.Fingerprint, after.Fingerprint)
		require.ElementsMatch(t, []string{"a", "b"}, after.Largest)

		table, err := tr.Agreements([]string{"a", "c"})
		require.NoError(t, err)
		require.Len(t, table, 3)
		require.Greater(t, table[1][1].Estimate(), 0.99)

		est, err := tr.Estimate(KindAgreement, "a", "b")
		require.NoError(t, err)
		require.InDelta(t, table[1][1].Estimate(), est.Estimate(), 1e-12)
	})

	t.Run("agreement failures within a group split it", func(t *testing.T) {
		require.NoError(t, tr.Apply(pairObservation(KindAgreement, "a", "b", 0)))

		groups, err := tr.Groups(KindAgreement, []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, groups, 2)
	})

	t.Run("collusion observations isolate suspects", func(t *testing.T) {
		require.NoError(t, tr.Apply(pairObservation(KindCollusion, "a", "b", 1)))

		largest, err := tr.LargestGroup(KindCollusion)
		require.NoError(t, err)
		require.Equal(t, []string{"c", "d", "e", "f"}, largest)

		likelihood, err := tr.CollusionLikelihood([]string{"a", "b"})
		require.NoError(t, err)
		require.InDelta(t, 2.0/3.0, likelihood.Estimate(), 1e-12)

		byCandidate, err := tr.CollusionLikelihoodWith("a", []string{"b", "c"})
		require.NoError(t, err)
		require.Greater(t, byCandidate["b"].Estimate(), byCandidate["c"].Estimate())

		require.InDelta(t, 2.0/6.0, tr.ColludersFraction().Estimate(), 1e-9)

		table, err := tr.Collusions([]string{"a"})
		require.NoError(t, err)
		require.Len(t, table, 2)
	})

	t.Run("collusion failures only add evidence", func(t *testing.T) {
		require.NoError(t, tr.Apply(pairObservation(KindCollusion, "c", "d", 0)))

		snap, err := tr.Snapshot(KindCollusion)
		require.NoError(t, err)
		require.Len(t, snap.Groups, 3)
		require.Positive(t, snap.GeneralError)
	})

	require.NoError(t, tr.CheckInvariants())
}

func TestTracker_Membership(t *testing.T) {
	tr := newTestTracker(t, "a", "b")

	require.NoError(t, tr.Apply(Observation{Pool: "pool", Kind: KindJoin, WorkerA: "c"}))
	require.Equal(t, 3, tr.NumWorkers())

	largest, err := tr.LargestGroup(KindCollusion)
	require.NoError(t, err)
	require.Len(t, largest, 3, "newcomers join the presumed honest majority")

	require.NoError(t, tr.Apply(Observation{Pool: "pool", Kind: KindLeave, WorkerA: "a"}))
	require.Equal(t, 2, tr.NumWorkers())

	err = tr.Apply(Observation{Pool: "pool", Kind: KindLeave, WorkerA: "a"})
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, tr.RemoveWorkers([]string{"b", "ghost"}), ErrNotFound)
	require.Equal(t, 2, tr.NumWorkers(), "a failed removal leaves both engines untouched")

	require.NoError(t, tr.RemoveWorkers([]string{"b", "c"}))
	require.Zero(t, tr.NumWorkers())
	largest, err = tr.LargestGroup(KindAgreement)
	require.NoError(t, err)
	require.Nil(t, largest)
	require.NoError(t, tr.CheckInvariants())
}

func TestTracker_Errors(t *testing.T) {
	tr := newTestTracker(t, "a", "b")

	tests := []struct {
		name string
		obs  Observation
		want error
	}{
		{"non-binary outcome", pairObservation(KindAgreement, "a", "b", 2), ErrInvalidObservation},
		{"missing worker", pairObservation(KindCollusion, "a", "", 1), ErrInvalidObservation},
		{"unknown kind", pairObservation("vote", "a", "b", 1), ErrInvalidObservation},
		{"missing pool", Observation{Kind: KindJoin, WorkerA: "c"}, ErrInvalidObservation},
		{"unknown agreement worker", pairObservation(KindAgreement, "a", "ghost", 1), ErrNotFound},
		{"unknown collusion worker", pairObservation(KindCollusion, "ghost", "b", 0), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tr.Apply(tt.obs), tt.want)
		})
	}

	t.Run("unknown engine kind", func(t *testing.T) {
		_, err := tr.Groups(KindJoin, []string{"a"})
		require.ErrorIs(t, err, ErrInvalidInput)
		_, err = tr.LargestGroup("vote")
		require.ErrorIs(t, err, ErrInvalidInput)
		_, err = tr.Snapshot("vote")
		require.ErrorIs(t, err, ErrInvalidInput)
		_, err = tr.Estimate(KindLeave, "a", "b")
		require.ErrorIs(t, err, ErrInvalidInput)
		_, err = tr.Estimate(KindCollusion, "a", "ghost")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty likelihood", func(t *testing.T) {
		_, err := tr.CollusionLikelihood(nil)
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestTracker_Concurrent(t *testing.T) {
	workers := make([]string, 12)
	for i := range workers {
		workers[i] = fmt.Sprintf("w%02d", i)
	}
	tr := newTestTracker(t, workers...)

	var wg sync.WaitGroup
	for g := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := range 50 {
				a, b := workers[(g+round)%len(workers)], workers[(g*3+round+1)%len(workers)]
				kind := KindAgreement
				if round%2 == 1 {
					kind = KindCollusion
				}
				if err := tr.Apply(pairObservation(kind, a, b, round%3%2)); err != nil {
					t.Errorf("apply: %v", err)

					return
				}
				_, _ = tr.Snapshot(kind)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, tr.CheckInvariants())
	require.Equal(t, len(workers), tr.NumWorkers())
}

func TestTracker_MembershipAtomic(t *testing.T) {
	t.Run("removal validates against both engines first", func(t *testing.T) {
		tr := newTestTracker(t, "a", "b", "c")
		require.NoError(t, tr.collusion.RemoveAllWorkers([]string{"c"}))

		require.ErrorIs(t, tr.RemoveWorkers([]string{"b", "c"}), ErrNotFound)
		require.True(t, tr.agreement.Partition().Contains("b"))
		require.True(t, tr.agreement.Partition().Contains("c"))
		require.True(t, tr.collusion.Partition().Contains("b"))
	})

	t.Run("interleaved joins and leaves keep the engines in step", func(t *testing.T) {
		tr := newTestTracker(t, "a", "b")

		var wg sync.WaitGroup
		for g := range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for round := range 200 {
					if (g+round)%2 == 0 {
						tr.AddWorkers([]string{"x"})

						continue
					}
					if err := tr.RemoveWorkers([]string{"x"}); err != nil && !errors.Is(err, ErrNotFound) {
						t.Errorf("remove: %v", err)

						return
					}
				}
			}()
		}
		wg.Wait()

		require.Equal(t, tr.agreement.Partition().Contains("x"), tr.collusion.Partition().Contains("x"))
		require.Equal(t, tr.agreement.NumWorkers(), tr.collusion.NumWorkers())
		require.NoError(t, tr.CheckInvariants())
	})
}
