package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/lccanon/simdeg"
	"github.com/lccanon/simdeg/internal/logger"
	simdegtest "github.com/lccanon/simdeg/testing"
	"github.com/lccanon/simdeg/types"
)

func join(t *testing.T, reg *simdeg.Registry, pool string, workers ...string) {
	t.Helper()

	for _, w := range workers {
		require.NoError(t, reg.Apply(types.Observation{Pool: pool, Kind: types.KindJoin, WorkerA: w}))
	}
}

func readSnapshot(t *testing.T, kv jetstream.KeyValue, key string) (GroupSnapshot, uint64) {
	t.Helper()

	entry, err := kv.Get(t.Context(), key)
	require.NoError(t, err)

	var snap GroupSnapshot
	require.NoError(t, json.Unmarshal(entry.Value(), &snap))

	return snap, entry.Revision()
}

func TestSnapshotPublisher_PublishNow(t *testing.T) {
	ctx := t.Context()
	_, nc := simdegtest.StartEmbeddedNATS(t)

	cfg := simdeg.TestConfig()
	reg, err := simdeg.NewRegistry(cfg)
	require.NoError(t, err)
	join(t, reg, "boinc", "a", "b", "c")

	pub, err := NewSnapshotPublisher(ctx, nc, reg, cfg.Feed, WithLogger(logger.NewTest(t)))
	require.NoError(t, err)
	require.NoError(t, pub.PublishNow(ctx))

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	kv, err := js.KeyValue(ctx, cfg.Feed.SnapshotBucket)
	require.NoError(t, err)

	agreement, _ := readSnapshot(t, kv, SnapshotKey("boinc", types.KindAgreement))
	require.Equal(t, "boinc", agreement.Pool)
	require.Equal(t, 3, agreement.Workers)
	require.Len(t, agreement.Groups, 3)

	collusion, collusionRev := readSnapshot(t, kv, SnapshotKey("boinc", types.KindCollusion))
	require.ElementsMatch(t, []string{"a", "b", "c"}, collusion.Largest)

	t.Run("republishes changed groupings only", func(t *testing.T) {
		for range 99 {
			require.NoError(t, reg.Apply(types.Observation{
				Pool: "boinc", Kind: types.KindAgreement, WorkerA: "a", WorkerB: "b", Outcome: 1,
			}))
		}
		require.NoError(t, pub.PublishNow(ctx))

		agreement, _ := readSnapshot(t, kv, SnapshotKey("boinc", types.KindAgreement))
		require.Len(t, agreement.Groups, 2)
		require.ElementsMatch(t, []string{"a", "b"}, agreement.Largest)

		_, rev := readSnapshot(t, kv, SnapshotKey("boinc", types.KindCollusion))
		require.Equal(t, collusionRev, rev)
	})

	t.Run("removes deleted pools", func(t *testing.T) {
		require.NoError(t, reg.Delete("boinc"))
		require.NoError(t, pub.PublishNow(ctx))

		_, err := kv.Get(ctx, SnapshotKey("boinc", types.KindAgreement))
		require.ErrorIs(t, err, jetstream.ErrKeyNotFound)
	})
}

func TestSnapshotPublisher_StartStop(t *testing.T) {
	ctx := t.Context()
	_, nc := simdegtest.StartEmbeddedNATS(t)

	cfg := simdeg.TestConfig()
	reg, err := simdeg.NewRegistry(cfg)
	require.NoError(t, err)

	_, err = NewSnapshotPublisher(ctx, nil, reg, cfg.Feed)
	require.ErrorIs(t, err, types.ErrNATSConnectionRequired)
	_, err = NewSnapshotPublisher(ctx, nc, nil, cfg.Feed)
	require.ErrorIs(t, err, types.ErrInvalidInput)

	pub, err := NewSnapshotPublisher(ctx, nc, reg, cfg.Feed)
	require.NoError(t, err)
	require.ErrorIs(t, pub.Stop(), types.ErrPublisherNotStarted)

	require.NoError(t, pub.Start(ctx))
	require.True(t, pub.IsStarted())
	require.ErrorIs(t, pub.Start(ctx), types.ErrPublisherAlreadyStarted)

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	kv, err := js.KeyValue(ctx, cfg.Feed.SnapshotBucket)
	require.NoError(t, err)

	// Pools created after Start show up on the next tick.
	join(t, reg, "late", "w1")
	require.Eventually(t, func() bool {
		_, err := kv.Get(ctx, SnapshotKey("late", types.KindCollusion))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, pub.Stop())
	require.False(t, pub.IsStarted())

	// A stopped publisher can be started again.
	require.NoError(t, pub.Start(ctx))
	require.NoError(t, pub.Stop())
}
