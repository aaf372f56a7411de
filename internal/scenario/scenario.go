// Package scenario drives a Tracker through deterministic observation
// sequences with a known expected grouping.
//
// Three scenarios are provided:
//   - convergence: populations agree internally and disagree with each other;
//     the agreement partition converges to one group per population.
//   - fragmentation: convergence, then every pair disagrees until only
//     singleton groups remain.
//   - oscillation: populations are merged internally, then cross pairs agree
//     half of the time; the cross estimate settles at 0.5.
package scenario

import (
	"context"
	"fmt"
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/lccanon/simdeg"
	"github.com/lccanon/simdeg/estimator"
	"github.com/lccanon/simdeg/internal/logger"
	"github.com/lccanon/simdeg/types"
)

// Name identifies a scenario.
type Name string

const (
	Convergence   Name = "convergence"
	Fragmentation Name = "fragmentation"
	Oscillation   Name = "oscillation"
)

// Names returns every scenario name.
func Names() []Name {
	return []Name{Convergence, Fragmentation, Oscillation}
}

// Parse returns the scenario called s.
//
// Returns:
//   - Name: Scenario name
//   - error: ErrInvalidInput for an unknown scenario
func Parse(s string) (Name, error) {
	name := Name(s)
	if !slices.Contains(Names(), name) {
		return "", fmt.Errorf("unknown scenario %q: %w", s, types.ErrInvalidInput)
	}

	return name, nil
}

// Config sizes a scenario run.
type Config struct {
	// Populations lists the size of each honest population.
	Populations []int

	// Rounds is the number of rounds of each convergence or fragmentation phase.
	Rounds int

	// OscillationRounds is the number of 50/50 rounds between populations.
	OscillationRounds int

	// Seed selects which cross pairs agree in each oscillation round.
	Seed uint64
}

// DefaultConfig returns two populations of 10 and 29 workers observed for
// 100 rounds.
func DefaultConfig() Config {
	return Config{
		Populations:       []int{10, 29},
		Rounds:            100,
		OscillationRounds: 40,
		Seed:              42,
	}
}

// Validate checks the sizes.
func (c Config) Validate() error {
	if len(c.Populations) < 2 {
		return fmt.Errorf("%d populations, need at least 2: %w", len(c.Populations), types.ErrInvalidInput)
	}
	for i, n := range c.Populations {
		if n < 1 {
			return fmt.Errorf("population %d has size %d: %w", i, n, types.ErrInvalidInput)
		}
	}
	if c.Rounds < 1 || c.OscillationRounds < 0 {
		return fmt.Errorf("rounds %d/%d: %w", c.Rounds, c.OscillationRounds, types.ErrInvalidInput)
	}

	return nil
}

// Result summarizes a finished run.
type Result struct {
	Scenario Name

	// Populations lists the worker ids of each population.
	Populations [][]string

	// Observations is the number of observations applied.
	Observations int

	// Agreement is the final agreement grouping.
	Agreement simdeg.Snapshot

	// Cross estimates the agreement between the first workers of the first
	// two populations.
	Cross *estimator.Beta
}

// Runner executes scenarios against fresh trackers.
type Runner struct {
	cfg         Config
	logger      types.Logger
	trackerOpts []simdeg.Option
}

// NewRunner creates a scenario runner.
//
// Parameters:
//   - cfg: Scenario sizes
//   - log: Logger for phase progress (nil for none)
//   - opts: Options passed to every Tracker
//
// Returns:
//   - *Runner: Runner ready to use
//   - error: ErrInvalidInput if cfg is invalid
func NewRunner(cfg Config, log types.Logger, opts ...simdeg.Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Runner{cfg: cfg, logger: logger.OrNop(log), trackerOpts: opts}, nil
}

// Run plays the named scenario on a new Tracker.
//
// ctx is checked between rounds.
//
// Returns:
//   - *Result: Final grouping
//   - error: ErrInvalidInput for an unknown scenario, ctx.Err() on cancellation
func (r *Runner) Run(ctx context.Context, name Name) (*Result, error) {
	if _, err := Parse(string(name)); err != nil {
		return nil, err
	}

	tr, err := simdeg.NewTracker(simdeg.DefaultConfig(), r.trackerOpts...)
	if err != nil {
		return nil, err
	}

	d := newDriver(tr, name, r.cfg.Populations)
	tr.AddWorkers(d.workers)

	switch name {
	case Convergence:
		err = r.phase(ctx, d, "converge", r.cfg.Rounds, d.samePopulation)
	case Fragmentation:
		err = r.phase(ctx, d, "converge", r.cfg.Rounds, d.samePopulation)
		if err == nil {
			err = r.phase(ctx, d, "fragment", r.cfg.Rounds, alwaysDisagree)
		}
	case Oscillation:
		err = r.phase(ctx, d, "merge populations", r.cfg.Rounds, d.intraOnly)
		if err == nil {
			err = r.oscillate(ctx, d)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := tr.CheckInvariants(); err != nil {
		return nil, err
	}

	snap, err := tr.Snapshot(simdeg.KindAgreement)
	if err != nil {
		return nil, err
	}

	cross, err := tr.Estimate(simdeg.KindAgreement, d.populations[0][0], d.populations[1][0])
	if err != nil {
		return nil, err
	}

	return &Result{
		Scenario:     name,
		Populations:  d.populations,
		Observations: d.applied,
		Agreement:    snap,
		Cross:        cross,
	}, nil
}

// phase applies rounds of pairwise observations decided by outcome.
func (r *Runner) phase(ctx context.Context, d *driver, label string, rounds int, outcome outcomeFunc) error {
	for range rounds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.round(outcome); err != nil {
			return err
		}
	}

	snap, err := d.tracker.Snapshot(simdeg.KindAgreement)
	if err != nil {
		return err
	}
	r.logger.Info("scenario phase done",
		"scenario", d.name,
		"phase", label,
		"rounds", rounds,
		"groups", len(snap.Groups),
	)

	return nil
}

// oscillate gives exactly half of the cross pairs an agreement each round.
// Which half is decided by ranking the pairs on a seeded xxh3 hash.
func (r *Runner) oscillate(ctx context.Context, d *driver) error {
	cross := d.crossPairs()
	ranks := make([]int, len(cross))
	agree := make([]bool, len(cross))

	for round := range r.cfg.OscillationRounds {
		if err := ctx.Err(); err != nil {
			return err
		}

		seed := r.cfg.Seed + uint64(round)
		for i := range ranks {
			ranks[i] = i
		}
		slices.SortFunc(ranks, func(a, b int) int {
			ha, hb := cross[a].hash(seed), cross[b].hash(seed)
			switch {
			case ha < hb:
				return -1
			case ha > hb:
				return 1
			default:
				return a - b
			}
		})
		clear(agree)
		for _, idx := range ranks[:len(ranks)/2] {
			agree[idx] = true
		}

		for i, p := range cross {
			bit := 0
			if agree[i] {
				bit = 1
			}
			if err := d.apply(p.a, p.b, bit); err != nil {
				return err
			}
		}
	}

	r.logger.Info("scenario phase done",
		"scenario", d.name,
		"phase", "oscillate",
		"rounds", r.cfg.OscillationRounds,
		"crossPairs", len(cross),
	)

	return nil
}

// outcomeFunc decides the observation for workers i < j: observe reports
// whether the pair is observed at all.
type outcomeFunc func(i, j int) (bit int, observe bool)

func alwaysDisagree(int, int) (int, bool) { return 0, true }

type pair struct{ a, b string }

func (p pair) hash(seed uint64) uint64 {
	return xxh3.HashStringSeed(p.a+"\x00"+p.b, seed)
}

// driver feeds observations for one population layout into a tracker.
type driver struct {
	tracker     *simdeg.Tracker
	name        Name
	populations [][]string
	workers     []string
	population  []int
	applied     int
}

func newDriver(tr *simdeg.Tracker, name Name, sizes []int) *driver {
	d := &driver{tracker: tr, name: name}
	for p, n := range sizes {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("p%d-w%02d", p, i)
			d.population = append(d.population, p)
		}
		d.populations = append(d.populations, ids)
		d.workers = append(d.workers, ids...)
	}

	return d
}

func (d *driver) samePopulation(i, j int) (int, bool) {
	if d.population[i] == d.population[j] {
		return 1, true
	}

	return 0, true
}

func (d *driver) intraOnly(i, j int) (int, bool) {
	return 1, d.population[i] == d.population[j]
}

// crossPairs lists the pairs of the first two populations.
func (d *driver) crossPairs() []pair {
	pairs := make([]pair, 0, len(d.populations[0])*len(d.populations[1]))
	for _, a := range d.populations[0] {
		for _, b := range d.populations[1] {
			pairs = append(pairs, pair{a, b})
		}
	}

	return pairs
}

// round applies one observation per unordered pair of workers.
func (d *driver) round(outcome outcomeFunc) error {
	for i := range d.workers {
		for j := i + 1; j < len(d.workers); j++ {
			bit, observe := outcome(i, j)
			if !observe {
				continue
			}
			if err := d.apply(d.workers[i], d.workers[j], bit); err != nil {
				return err
			}
		}
	}

	return nil
}

func (d *driver) apply(a, b string, bit int) error {
	err := d.tracker.Apply(simdeg.Observation{
		Pool:    string(d.name),
		Kind:    simdeg.KindAgreement,
		WorkerA: a,
		WorkerB: b,
		Outcome: bit,
	})
	if err != nil {
		return err
	}
	d.applied++

	return nil
}
