package simdeg

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/lccanon/simdeg/internal/logger"
)

// Registry holds one Tracker per worker pool.
//
// Trackers are created on first use and share the registry's configuration
// and options. Registry is safe for concurrent use; observations of different
// pools never contend.
type Registry struct {
	cfg      Config
	opts     []Option
	logger   Logger
	trackers *xsync.Map[string, *Tracker]
}

// NewRegistry creates an empty Registry.
//
// Parameters:
//   - cfg: Configuration shared by every tracker, see DefaultConfig
//   - opts: Optional logger, metrics and debug settings passed to every tracker
//
// Returns:
//   - *Registry: Empty registry
//   - error: ErrInvalidConfig if cfg is invalid
//
// Example:
//
//	reg, err := simdeg.NewRegistry(simdeg.DefaultConfig())
//	err = reg.Apply(simdeg.Observation{Pool: "p1", Kind: simdeg.KindJoin, WorkerA: "w1"})
func NewRegistry(cfg Config, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := trackerOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return &Registry{
		cfg:      cfg,
		opts:     opts,
		logger:   logger.OrNop(o.logger),
		trackers: xsync.NewMap[string, *Tracker](),
	}, nil
}

// Tracker returns the tracker of pool, creating it when missing.
//
// Returns:
//   - *Tracker: Tracker of the pool
//   - error: ErrInvalidInput for an empty pool name
func (r *Registry) Tracker(pool string) (*Tracker, error) {
	if pool == "" {
		return nil, fmt.Errorf("empty pool name: %w", ErrInvalidInput)
	}
	if tr, ok := r.trackers.Load(pool); ok {
		return tr, nil
	}

	tr, err := NewTracker(r.cfg, r.opts...)
	if err != nil {
		return nil, err
	}
	actual, loaded := r.trackers.LoadOrStore(pool, tr)
	if !loaded {
		r.logger.Info("pool tracker created", "pool", pool)
	}

	return actual, nil
}

// Lookup returns the tracker of pool without creating it.
//
// Returns:
//   - *Tracker: Tracker of the pool
//   - error: ErrUnknownPool if no tracker exists
func (r *Registry) Lookup(pool string) (*Tracker, error) {
	tr, ok := r.trackers.Load(pool)
	if !ok {
		return nil, fmt.Errorf("pool %q: %w", pool, ErrUnknownPool)
	}

	return tr, nil
}

// Delete drops the tracker of pool.
//
// Returns:
//   - error: ErrUnknownPool if no tracker exists
func (r *Registry) Delete(pool string) error {
	if _, ok := r.trackers.LoadAndDelete(pool); !ok {
		return fmt.Errorf("pool %q: %w", pool, ErrUnknownPool)
	}
	r.logger.Info("pool tracker deleted", "pool", pool)

	return nil
}

// Range calls fn for every pool until fn returns false. The iteration order
// is unspecified.
func (r *Registry) Range(fn func(pool string, tr *Tracker) bool) {
	r.trackers.Range(fn)
}

// Len returns the number of pools.
func (r *Registry) Len() int {
	return r.trackers.Size()
}

// Apply routes an observation to the tracker of its pool. A join creates the
// pool when missing; every other kind requires an existing pool.
//
// Returns:
//   - error: ErrInvalidObservation if obs is malformed, ErrUnknownPool for an
//     unknown pool, ErrNotFound if a worker is unknown
func (r *Registry) Apply(obs Observation) error {
	if err := obs.Validate(); err != nil {
		return err
	}

	var (
		tr  *Tracker
		err error
	)
	if obs.Kind == KindJoin {
		tr, err = r.Tracker(obs.Pool)
	} else {
		tr, err = r.Lookup(obs.Pool)
	}
	if err != nil {
		return err
	}

	return tr.Apply(obs)
}
