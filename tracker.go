package simdeg

import (
	"fmt"
	"sync"

	"github.com/lccanon/simdeg/engine"
	"github.com/lccanon/simdeg/estimator"
	"github.com/lccanon/simdeg/internal/logger"
	"github.com/lccanon/simdeg/internal/metrics"
	"github.com/lccanon/simdeg/partition"
)

// Tracker estimates the agreement and collusion groups of one worker
// population.
//
// It owns one AgreementEngine and one CollusionEngine over string worker ids,
// each behind its own lock, so observations of different kinds never contend.
// Every worker is registered with both engines. Tracker is safe for concurrent
// use.
type Tracker struct {
	cfg    Config
	logger Logger

	// Queries refresh the cached largest group, so reads lock too.
	agreementMu sync.Mutex
	agreement   *engine.AgreementEngine[string]

	collusionMu sync.Mutex
	collusion   *engine.CollusionEngine[string]
}

// Snapshot is a point-in-time view of one engine's grouping.
type Snapshot struct {
	// Kind is the engine the snapshot was taken from.
	Kind ObservationKind

	// Groups lists the members of every live group.
	Groups [][]string

	// Largest lists the members of the reference group.
	Largest []string

	// GeneralError is the mean error across the largest group's row.
	GeneralError float64

	// Fingerprint identifies the grouping independently of group order.
	Fingerprint uint64
}

// groupView is the part of an engine shared by both kinds.
type groupView interface {
	Groups(workers []string) ([][]string, error)
	AllGroups() [][]string
	LargestGroup() []string
	GeneralError() float64
	Estimate(w1, w2 string) (*estimator.Beta, error)
	NumWorkers() int
	Partition() *partition.Partition[string]
}

// NewTracker creates a Tracker with no workers.
//
// Parameters:
//   - cfg: Configuration, see DefaultConfig
//   - opts: Optional logger, metrics and debug settings
//
// Returns:
//   - *Tracker: Empty tracker
//   - error: ErrInvalidConfig if cfg is invalid
//
// Example:
//
//	tr, err := simdeg.NewTracker(simdeg.DefaultConfig())
//	tr.AddWorkers([]string{"w1", "w2", "w3"})
//	err = tr.Apply(simdeg.Observation{Kind: simdeg.KindAgreement, WorkerA: "w1", WorkerB: "w2", Outcome: 1})
func NewTracker(cfg Config, opts ...Option) (*Tracker, error) {
	o := trackerOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := logger.OrNop(o.logger)
	m := metrics.OrNop(o.metrics)
	cfg.ValidateWithWarnings(l)

	engineOpts := []engine.Option{
		engine.WithLogger(l),
		engine.WithMetrics(m),
		engine.WithDebug(o.debug),
	}

	agreement, err := engine.NewAgreement[string](cfg.AgreementEngineConfig(), engineOpts...)
	if err != nil {
		return nil, err
	}
	collusion, err := engine.NewCollusion[string](cfg.CollusionEngineConfig(), engineOpts...)
	if err != nil {
		return nil, err
	}

	return &Tracker{
		cfg:       cfg,
		logger:    l,
		agreement: agreement,
		collusion: collusion,
	}, nil
}

// Config returns the tracker configuration.
func (t *Tracker) Config() Config { return t.cfg }

// NumWorkers returns the number of registered workers.
func (t *Tracker) NumWorkers() int {
	t.agreementMu.Lock()
	defer t.agreementMu.Unlock()

	return t.agreement.NumWorkers()
}

// AddWorkers registers workers with both engines. Known workers are ignored.
func (t *Tracker) AddWorkers(workers []string) {
	t.agreementMu.Lock()
	defer t.agreementMu.Unlock()
	t.collusionMu.Lock()
	defer t.collusionMu.Unlock()

	t.agreement.AddAllWorkers(workers)
	t.collusion.AddAllWorkers(workers)
}

// RemoveWorkers unregisters workers from both engines.
//
// Returns:
//   - error: ErrNotFound if a worker is unknown, in which case nothing is removed
func (t *Tracker) RemoveWorkers(workers []string) error {
	t.agreementMu.Lock()
	defer t.agreementMu.Unlock()
	t.collusionMu.Lock()
	defer t.collusionMu.Unlock()

	if _, err := t.agreement.Partition().GroupsOf(workers); err != nil {
		return err
	}
	if _, err := t.collusion.Partition().GroupsOf(workers); err != nil {
		return err
	}

	if err := t.agreement.RemoveAllWorkers(workers); err != nil {
		return err
	}

	return t.collusion.RemoveAllWorkers(workers)
}

// Apply routes one observation to the engine of its kind. Join and leave
// observations register and unregister WorkerA. The observation's pool is
// not checked; see Registry.Apply for pool routing.
//
// Returns:
//   - error: ErrInvalidObservation if obs is malformed, ErrNotFound if a worker is unknown
func (t *Tracker) Apply(obs Observation) error {
	if err := obs.Validate(); err != nil {
		return err
	}

	var err error
	switch obs.Kind {
	case KindAgreement:
		t.agreementMu.Lock()
		if obs.Outcome == 1 {
			err = t.agreement.IncreaseAgreement(obs.WorkerA, obs.WorkerB)
		} else {
			err = t.agreement.DecreaseAgreement(obs.WorkerA, obs.WorkerB)
		}
		t.agreementMu.Unlock()
	case KindCollusion:
		t.collusionMu.Lock()
		if obs.Outcome == 1 {
			err = t.collusion.IncreaseCollusion(obs.WorkerA, obs.WorkerB)
		} else {
			err = t.collusion.DecreaseCollusion(obs.WorkerA, obs.WorkerB)
		}
		t.collusionMu.Unlock()
	case KindJoin:
		t.AddWorkers([]string{obs.WorkerA})
		t.logger.Debug("worker joined", "pool", obs.Pool, "worker", obs.WorkerA)
	case KindLeave:
		err = t.RemoveWorkers([]string{obs.WorkerA})
		if err == nil {
			t.logger.Debug("worker left", "pool", obs.Pool, "worker", obs.WorkerA)
		}
	}

	if err != nil {
		return fmt.Errorf("apply %s observation: %w", obs.Kind, err)
	}

	return nil
}

// Agreements returns the agreement table of the groups of workers, with the
// largest agreement group at index 0.
//
// Returns:
//   - [][]*Estimator: Square table of independent estimators
//   - error: ErrNotFound if a worker is unknown
func (t *Tracker) Agreements(workers []string) ([][]*estimator.Beta, error) {
	t.agreementMu.Lock()
	defer t.agreementMu.Unlock()

	return t.agreement.Agreements(workers)
}

// Collusions returns the collusion table of the groups of workers, with the
// largest collusion group at index 0.
//
// Returns:
//   - [][]*Estimator: Square table of independent estimators
//   - error: ErrNotFound if a worker is unknown
func (t *Tracker) Collusions(workers []string) ([][]*estimator.Beta, error) {
	t.collusionMu.Lock()
	defer t.collusionMu.Unlock()

	return t.collusion.Collusions(workers)
}

// CollusionLikelihood estimates the probability that all workers collude.
//
// Returns:
//   - *Estimator: Independent estimator
//   - error: ErrInvalidInput for an empty list, ErrNotFound if a worker is unknown
func (t *Tracker) CollusionLikelihood(workers []string) (*estimator.Beta, error) {
	t.collusionMu.Lock()
	defer t.collusionMu.Unlock()

	return t.collusion.CollusionLikelihood(workers)
}

// CollusionLikelihoodWith estimates, per candidate, the probability that it
// colludes with worker.
//
// Returns:
//   - map[string]*Estimator: Independent estimator per candidate
//   - error: ErrNotFound if a worker is unknown
func (t *Tracker) CollusionLikelihoodWith(worker string, candidates []string) (map[string]*estimator.Beta, error) {
	t.collusionMu.Lock()
	defer t.collusionMu.Unlock()

	return t.collusion.CollusionLikelihoodWith(worker, candidates)
}

// ColludersFraction estimates the fraction of workers outside the largest
// collusion group.
func (t *Tracker) ColludersFraction() *estimator.Beta {
	t.collusionMu.Lock()
	defer t.collusionMu.Unlock()

	return t.collusion.ColludersFraction()
}

// Groups returns the distinct groups of the given engine intersecting workers.
//
// Returns:
//   - [][]string: Members per group
//   - error: ErrInvalidInput for an unknown kind, ErrNotFound if a worker is unknown
func (t *Tracker) Groups(kind ObservationKind, workers []string) ([][]string, error) {
	var groups [][]string
	err := t.withView(kind, func(v groupView) error {
		var err error
		groups, err = v.Groups(workers)

		return err
	})

	return groups, err
}

// Estimate returns the given engine's estimate for the pair w1, w2, that is
// the cell shared by their groups.
//
// Returns:
//   - *Estimator: Independent copy of the cell
//   - error: ErrInvalidInput for an unknown kind, ErrNotFound if a worker is unknown
func (t *Tracker) Estimate(kind ObservationKind, w1, w2 string) (*estimator.Beta, error) {
	var est *estimator.Beta
	err := t.withView(kind, func(v groupView) error {
		var err error
		est, err = v.Estimate(w1, w2)

		return err
	})

	return est, err
}

// LargestGroup returns the reference group of the given engine.
//
// Returns:
//   - []string: Members of the largest group, nil without workers
//   - error: ErrInvalidInput for an unknown kind
func (t *Tracker) LargestGroup(kind ObservationKind) ([]string, error) {
	var largest []string
	err := t.withView(kind, func(v groupView) error {
		largest = v.LargestGroup()

		return nil
	})

	return largest, err
}

// Snapshot returns the current grouping of the given engine.
//
// Returns:
//   - Snapshot: Point-in-time grouping
//   - error: ErrInvalidInput for an unknown kind
func (t *Tracker) Snapshot(kind ObservationKind) (Snapshot, error) {
	snap := Snapshot{Kind: kind}
	err := t.withView(kind, func(v groupView) error {
		snap.Groups = v.AllGroups()
		snap.Largest = v.LargestGroup()
		snap.GeneralError = v.GeneralError()
		snap.Fingerprint = v.Partition().Fingerprint()

		return nil
	})

	return snap, err
}

// CheckInvariants verifies the partition bookkeeping of both engines.
//
// Returns:
//   - error: ErrInvariantViolated describing the first violation, nil if consistent
func (t *Tracker) CheckInvariants() error {
	for _, kind := range []ObservationKind{KindAgreement, KindCollusion} {
		err := t.withView(kind, func(v groupView) error {
			return v.Partition().CheckInvariants()
		})
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
	}

	return nil
}

func (t *Tracker) withView(kind ObservationKind, fn func(groupView) error) error {
	switch kind {
	case KindAgreement:
		t.agreementMu.Lock()
		defer t.agreementMu.Unlock()

		return fn(t.agreement)
	case KindCollusion:
		t.collusionMu.Lock()
		defer t.collusionMu.Unlock()

		return fn(t.collusion)
	default:
		return fmt.Errorf("engine kind %q: %w", kind, ErrInvalidInput)
	}
}
