package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/lccanon/simdeg"
	"github.com/lccanon/simdeg/internal/kvutil"
	"github.com/lccanon/simdeg/internal/logger"
	"github.com/lccanon/simdeg/types"
)

// publishTimeout bounds one snapshot publication from the background loop.
const publishTimeout = 5 * time.Second

// GroupSnapshot is the KV value published for one engine of one pool.
type GroupSnapshot struct {
	Pool         string                `json:"pool"`
	Kind         types.ObservationKind `json:"kind"`
	Workers      int                   `json:"workers"`
	Groups       [][]string            `json:"groups"`
	Largest      []string              `json:"largest"`
	GeneralError float64               `json:"generalError"`
	Fingerprint  uint64                `json:"fingerprint"`
	PublishedAt  time.Time             `json:"publishedAt"`
}

// SnapshotKey returns the KV key of a pool's snapshot: <pool>.<kind>.
func SnapshotKey(pool string, kind types.ObservationKind) string {
	return pool + "." + string(kind)
}

// SnapshotPublisher periodically writes the grouping of every pool of a
// Registry to a JetStream KV bucket.
//
// Schedulers watch the bucket to learn which workers agree or collude
// without linking the tracker. Entries are only rewritten when the grouping
// changed, and entries of deleted pools are removed.
type SnapshotPublisher struct {
	kv       jetstream.KeyValue
	registry *simdeg.Registry
	interval time.Duration
	logger   types.Logger

	// Fingerprints of the last published snapshot per key.
	published map[string]uint64
	pubMu     sync.Mutex

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSnapshotPublisher opens (or creates) cfg.SnapshotBucket.
//
// Parameters:
//   - ctx: Context for the bucket setup
//   - conn: NATS connection
//   - registry: Registry whose pools are published
//   - cfg: Feed configuration (validated)
//   - opts: Optional logger
//
// Returns:
//   - *SnapshotPublisher: Stopped publisher
//   - error: ErrNATSConnectionRequired, ErrInvalidInput, ErrInvalidConfig or a bucket error
//
// Example:
//
//	snaps, err := feed.NewSnapshotPublisher(ctx, nc, reg, cfg.Feed)
//	if err != nil {
//	    return err
//	}
//	_ = snaps.Start(ctx)
//	defer snaps.Stop()
func NewSnapshotPublisher(
	ctx context.Context,
	conn *nats.Conn,
	registry *simdeg.Registry,
	cfg simdeg.FeedConfig,
	opts ...Option,
) (*SnapshotPublisher, error) {
	if conn == nil {
		return nil, types.ErrNATSConnectionRequired
	}
	if registry == nil {
		return nil, fmt.Errorf("nil registry: %w", types.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.SnapshotBucket,
		Description: "simdeg group snapshots",
		History:     1,
	}, 3)
	if err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	return &SnapshotPublisher{
		kv:        kv,
		registry:  registry,
		interval:  cfg.SnapshotInterval,
		logger:    logger.OrNop(o.logger),
		published: make(map[string]uint64),
	}, nil
}

// Start publishes a first round of snapshots, then keeps publishing every
// SnapshotInterval until Stop is called.
//
// Returns:
//   - error: ErrPublisherAlreadyStarted, or the first publication error
func (p *SnapshotPublisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return types.ErrPublisherAlreadyStarted
	}

	if err := p.PublishNow(ctx); err != nil {
		return fmt.Errorf("failed to publish initial snapshots: %w", err)
	}

	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.publishLoop(p.stopCh, p.doneCh)

	return nil
}

// Stop stops the background loop. Published snapshots stay in the bucket.
//
// Returns:
//   - error: ErrPublisherNotStarted if not running
func (p *SnapshotPublisher) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return types.ErrPublisherNotStarted
	}
	p.started = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)
	<-doneCh

	return nil
}

func (p *SnapshotPublisher) publishLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			if err := p.PublishNow(ctx); err != nil {
				p.logger.Warn("failed to publish group snapshots", "error", err)
			}
			cancel()
		}
	}
}

// PublishNow writes the snapshots of every pool whose grouping changed since
// the last publication and deletes the entries of pools that are gone.
//
// Returns:
//   - error: First KV error; remaining pools are still attempted
func (p *SnapshotPublisher) PublishNow(ctx context.Context) error {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	live := make(map[string]struct{}, 2*p.registry.Len())
	now := time.Now().UTC()

	p.registry.Range(func(pool string, tr *simdeg.Tracker) bool {
		for _, kind := range []types.ObservationKind{types.KindAgreement, types.KindCollusion} {
			key := SnapshotKey(pool, kind)
			live[key] = struct{}{}

			snap, err := tr.Snapshot(kind)
			if err != nil {
				keep(err)
				continue
			}
			if fp, ok := p.published[key]; ok && fp == snap.Fingerprint {
				continue
			}

			keep(p.put(ctx, key, GroupSnapshot{
				Pool:         pool,
				Kind:         kind,
				Workers:      tr.NumWorkers(),
				Groups:       snap.Groups,
				Largest:      snap.Largest,
				GeneralError: snap.GeneralError,
				Fingerprint:  snap.Fingerprint,
				PublishedAt:  now,
			}))
		}

		return true
	})

	for key := range p.published {
		if _, ok := live[key]; ok {
			continue
		}
		if err := p.kv.Delete(ctx, key); err != nil {
			keep(fmt.Errorf("delete snapshot %s: %w", key, err))
			continue
		}
		delete(p.published, key)
		p.logger.Debug("snapshot deleted", "key", key)
	}

	return firstErr
}

func (p *SnapshotPublisher) put(ctx context.Context, key string, snap GroupSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}

	if _, err := p.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("publish snapshot %s: %w", key, err)
	}
	p.published[key] = snap.Fingerprint
	p.logger.Debug("snapshot published", "key", key, "groups", len(snap.Groups))

	return nil
}

// IsStarted reports whether the background loop is running.
func (p *SnapshotPublisher) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.started
}
