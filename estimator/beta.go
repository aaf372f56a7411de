package estimator

import (
	"fmt"
	"math"

	"github.com/lccanon/simdeg/types"
)

const (
	// DefaultLevel is the confidence level used by Error.
	DefaultLevel = 0.95

	// minShape is the lower bound of both shape parameters.
	minShape = 1.0

	// maxConcentration caps alpha+beta. Larger evidence is rescaled down
	// proportionally, which keeps the estimate and bounds the certainty.
	maxConcentration = 1e6

	// minVariance replaces zero variances during moment matching.
	minVariance = 1e-12

	// guardMinRun is the shortest run of identical samples the run guard tests.
	guardMinRun = 2
)

// Beta is an interval estimator of a quantity on [lower, upper] whose
// distribution is approximated by a scaled Beta(alpha, beta).
//
// A Beta has one logical owner. Combinators return new values and never
// alias the receiver's state.
type Beta struct {
	alpha float64
	beta  float64

	lower float64
	upper float64
	level float64

	samples int

	// Run guard state
	guard  bool
	runBit int
	runLen int
}

// Option configures a Beta at construction time.
type Option func(*Beta)

// WithRange sets the range of the estimated quantity. Defaults to [0,1].
func WithRange(lower, upper float64) Option {
	return func(b *Beta) {
		b.lower = lower
		b.upper = upper
	}
}

// WithLevel sets the confidence level used by Error. Defaults to DefaultLevel.
func WithLevel(level float64) Option {
	return func(b *Beta) {
		b.level = level
	}
}

// WithRunGuard enables the successive-identical-sample guard.
func WithRunGuard() Option {
	return func(b *Beta) {
		b.guard = true
	}
}

// New creates an estimator holding the uninformative prior.
//
// Parameters:
//   - opts: Optional range, confidence level and run guard settings
//
// Returns:
//   - *Beta: Uninformative estimator (both shapes equal to 1)
//   - error: ErrInvalidRange if lower >= upper, ErrInvalidInput if the level is not in (0,1)
func New(opts ...Option) (*Beta, error) {
	b := &Beta{
		alpha:  minShape,
		beta:   minShape,
		lower:  0,
		upper:  1,
		level:  DefaultLevel,
		runBit: -1,
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := validateRange(b.lower, b.upper); err != nil {
		return nil, err
	}
	if math.IsNaN(b.level) || b.level <= 0 || b.level >= 1 {
		return nil, fmt.Errorf("confidence level %v: %w", b.level, types.ErrInvalidInput)
	}

	return b, nil
}

// NewUniform creates an uninformative estimator on [0,1] at the default level.
func NewUniform() *Beta {
	return &Beta{alpha: minShape, beta: minShape, lower: 0, upper: 1, level: DefaultLevel, runBit: -1}
}

// NewWithPrior creates an estimator whose prior has the given mean and error.
//
// Parameters:
//   - mean: Prior mean, must lie in [lower, upper]
//   - err: Prior error, must lie in [0, upper-lower]
//   - opts: Optional range, confidence level and run guard settings
//
// Returns:
//   - *Beta: Estimator matching the prior as closely as the family allows
//   - error: ErrInvalidInput for out-of-range arguments
//
// Example:
//
//	b, err := estimator.NewWithPrior(0.9, 0.05)
func NewWithPrior(mean, err float64, opts ...Option) (*Beta, error) {
	b, e := New(opts...)
	if e != nil {
		return nil, e
	}

	return b.CloneWithError(mean, err)
}

func validateRange(lower, upper float64) error {
	if math.IsNaN(lower) || math.IsNaN(upper) || math.IsInf(lower, 0) || math.IsInf(upper, 0) {
		return fmt.Errorf("range [%v, %v]: %w", lower, upper, types.ErrInvalidRange)
	}
	if lower >= upper {
		return fmt.Errorf("range [%v, %v] is inverted or empty: %w", lower, upper, types.ErrInvalidRange)
	}

	return nil
}

// Lower returns the lower bound of the estimated quantity.
func (b *Beta) Lower() float64 { return b.lower }

// Upper returns the upper bound of the estimated quantity.
func (b *Beta) Upper() float64 { return b.upper }

// Level returns the confidence level used by Error.
func (b *Beta) Level() float64 { return b.level }

// Shape returns the two shape parameters.
func (b *Beta) Shape() (alpha, beta float64) { return b.alpha, b.beta }

// Samples returns the number of samples ingested since the last reset.
func (b *Beta) Samples() int { return b.samples }

// Guarded reports whether the run guard is enabled.
func (b *Beta) Guarded() bool { return b.guard }

// IsUnitRange reports whether the estimator ranges over exactly [0,1].
func (b *Beta) IsUnitRange() bool { return b.lower == 0 && b.upper == 1 }

func (b *Beta) width() float64 { return b.upper - b.lower }

// ratio returns the mean of the unscaled Beta on [0,1].
func (b *Beta) ratio() float64 { return b.alpha / (b.alpha + b.beta) }

// Estimate returns the posterior mean.
func (b *Beta) Estimate() float64 {
	return b.lower + b.width()*b.ratio()
}

// Variance returns the posterior variance.
func (b *Beta) Variance() float64 {
	n := b.alpha + b.beta
	w := b.width()

	return w * w * b.alpha * b.beta / (n * n * (n + 1))
}

// Error returns the credible interval half width at the estimator's level.
func (b *Beta) Error() float64 {
	return b.ErrorAt(b.level)
}

// ErrorAt returns the credible interval half width at the given level.
// Levels outside (0,1) yield 0 for level <= 0 and the half range for level >= 1.
func (b *Beta) ErrorAt(level float64) float64 {
	if level <= 0 {
		return 0
	}
	if level >= 1 {
		return b.width() / 2
	}

	return b.width() * halfWidth(b.alpha, b.beta, level)
}

// SetSample ingests one binary observation.
//
// Parameters:
//   - bit: 1 for a success, 0 for a failure
//
// Returns:
//   - error: ErrInvalidSample if bit is neither 0 nor 1 (the estimator is unchanged)
func (b *Beta) SetSample(bit int) error {
	if bit != 0 && bit != 1 {
		return fmt.Errorf("sample %d: %w", bit, types.ErrInvalidSample)
	}

	b.ingest(bit)

	if !b.guard {
		return nil
	}

	if bit == b.runBit {
		b.runLen++
	} else {
		b.runBit = bit
		b.runLen = 1
	}

	if b.runLen >= guardMinRun && b.runUnlikely() {
		b.Clear()
		b.ingest(bit)
		b.runBit = bit
		b.runLen = 1
	}

	return nil
}

func (b *Beta) ingest(bit int) {
	if bit == 1 {
		b.alpha++
	} else {
		b.beta++
	}
	b.samples++
	b.normalize()
}

// runUnlikely reports whether the current run of identical samples has a
// probability below 1-level under the current estimate.
func (b *Beta) runUnlikely() bool {
	p := b.ratio()
	if b.runBit == 0 {
		p = 1 - p
	}

	return math.Pow(p, float64(b.runLen)) < 1-b.level
}

// Clear resets the estimator to the uninformative prior.
func (b *Beta) Clear() {
	b.alpha = minShape
	b.beta = minShape
	b.samples = 0
	b.runBit = -1
	b.runLen = 0
}

// Clone returns an independent copy of the estimator.
func (b *Beta) Clone() *Beta {
	c := *b

	return &c
}

// CloneWith returns an independent estimator of the same family whose mean is
// value. The concentration (alpha+beta) of the receiver is kept when feasible.
//
// Returns:
//   - *Beta: New estimator
//   - error: ErrInvalidInput if value is outside [lower, upper]
func (b *Beta) CloneWith(value float64) (*Beta, error) {
	if err := b.checkValue(value); err != nil {
		return nil, err
	}

	c := b.derive()
	m := (value - b.lower) / b.width()
	k := b.alpha + b.beta
	c.alpha, c.beta = m*k, (1-m)*k
	if c.alpha < minShape || c.beta < minShape {
		c.alpha, c.beta = pinnedShape(m, maxConcentration)
	}
	c.normalize()

	return c, nil
}

// CloneWithError returns an independent estimator of the same family whose
// mean is value and whose error at the receiver's level is approximately err.
//
// Returns:
//   - *Beta: New estimator
//   - error: ErrInvalidInput if value is outside [lower, upper] or err outside [0, upper-lower]
func (b *Beta) CloneWithError(value, err float64) (*Beta, error) {
	if e := b.checkValue(value); e != nil {
		return nil, e
	}
	if math.IsNaN(err) || err < 0 || err > b.width() {
		return nil, fmt.Errorf("error %v outside [0, %v]: %w", err, b.width(), types.ErrInvalidInput)
	}

	sd := err / zScore((1+b.level)/2)
	c := b.derive()
	c.alpha, c.beta = fromMoments(value, sd*sd, b.lower, b.upper)

	return c, nil
}

func (b *Beta) checkValue(value float64) error {
	if math.IsNaN(value) || value < b.lower || value > b.upper {
		return fmt.Errorf("value %v outside [%v, %v]: %w", value, b.lower, b.upper, types.ErrInvalidInput)
	}

	return nil
}

// derive returns a copy carrying the family settings but a fresh run state.
func (b *Beta) derive() *Beta {
	c := b.Clone()
	c.runBit = -1
	c.runLen = 0

	return c
}

// normalize enforces the shape bounds.
func (b *Beta) normalize() {
	if math.IsNaN(b.alpha) || math.IsNaN(b.beta) {
		b.alpha, b.beta = minShape, minShape

		return
	}
	if n := b.alpha + b.beta; n > maxConcentration {
		s := maxConcentration / n
		b.alpha *= s
		b.beta *= s
	}
	b.alpha = math.Max(b.alpha, minShape)
	b.beta = math.Max(b.beta, minShape)
}

// String formats the estimator as "estimate±error".
func (b *Beta) String() string {
	return fmt.Sprintf("%.4f±%.4f", b.Estimate(), b.Error())
}
