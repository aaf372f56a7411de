package estimator

import (
	"fmt"
	"math"

	"github.com/lccanon/simdeg/types"
)

// withMoments returns an estimator of the receiver's family on [lower, upper]
// matching the given moments.
func (b *Beta) withMoments(mean, variance, lower, upper float64) *Beta {
	c := b.derive()
	c.lower, c.upper = lower, upper
	c.alpha, c.beta = fromMoments(math.Min(math.Max(mean, lower), upper), variance, lower, upper)

	return c
}

// AddScalar returns the estimator of X + s.
//
// Returns:
//   - *Beta: Shifted estimator with the same shape
//   - error: ErrInvalidInput if s is not finite
func (b *Beta) AddScalar(s float64) (*Beta, error) {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return nil, fmt.Errorf("scalar %v: %w", s, types.ErrInvalidInput)
	}

	c := b.derive()
	c.lower += s
	c.upper += s

	return c, nil
}

// Multiply returns the estimator of s * X.
//
// Returns:
//   - *Beta: Scaled estimator; a negative scalar mirrors the shape
//   - error: ErrInvalidInput if s is zero or not finite
func (b *Beta) Multiply(s float64) (*Beta, error) {
	if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return nil, fmt.Errorf("scalar %v: %w", s, types.ErrInvalidInput)
	}

	c := b.derive()
	if s > 0 {
		c.lower, c.upper = b.lower*s, b.upper*s

		return c, nil
	}

	c.lower, c.upper = b.upper*s, b.lower*s
	c.alpha, c.beta = b.beta, b.alpha

	return c, nil
}

// Inverse returns the estimator of -X. The shape is mirrored, so the error is kept.
func (b *Beta) Inverse() *Beta {
	c := b.derive()
	c.lower, c.upper = -b.upper, -b.lower
	c.alpha, c.beta = b.beta, b.alpha

	return c
}

// Add returns the estimator of X + Y for independent X and Y.
func (b *Beta) Add(o *Beta) *Beta {
	return b.withMoments(
		b.Estimate()+o.Estimate(),
		b.Variance()+o.Variance(),
		b.lower+o.lower,
		b.upper+o.upper,
	)
}

// Subtract returns the estimator of X - Y for independent X and Y.
func (b *Beta) Subtract(o *Beta) *Beta {
	return b.Add(o.Inverse())
}

// Max returns the estimator of max(X, Y) for independent X and Y using
// Clark's moment matching.
func (b *Beta) Max(o *Beta) *Beta {
	mean, variance := clarkMax(b.Estimate(), b.Variance(), o.Estimate(), o.Variance())

	return b.withMoments(mean, variance, math.Max(b.lower, o.lower), math.Max(b.upper, o.upper))
}

// Min returns the estimator of min(X, Y) = -max(-X, -Y).
func (b *Beta) Min(o *Beta) *Beta {
	return b.Inverse().Max(o.Inverse()).Inverse()
}

// TruncateRange returns the estimator restricted to [lower, upper]. The mean is
// clamped into the new range and the variance is kept where the family allows.
//
// Returns:
//   - *Beta: Estimator on [lower, upper]
//   - error: ErrInvalidRange if lower >= upper
func (b *Beta) TruncateRange(lower, upper float64) (*Beta, error) {
	if err := validateRange(lower, upper); err != nil {
		return nil, err
	}

	return b.withMoments(b.Estimate(), b.Variance(), lower, upper), nil
}

// Merge combines two independent bodies of evidence about the same quantity.
//
// Each shape takes the larger of the two inputs; the pair is then rescaled so
// that its concentration matches the combined number of observations. An
// uninformative input therefore leaves the other unchanged. When the ranges
// differ, o is first moment-matched onto the receiver's range.
func (b *Beta) Merge(o *Beta) *Beta {
	if o.lower != b.lower || o.upper != b.upper {
		o = b.withMoments(o.Estimate(), o.Variance(), b.lower, b.upper)
	}

	alpha := math.Max(b.alpha, o.alpha)
	beta := math.Max(b.beta, o.beta)
	evidence := (b.alpha + b.beta - 2*minShape) + (o.alpha + o.beta - 2*minShape)
	scale := (evidence + 2*minShape) / (alpha + beta)

	c := b.derive()
	c.alpha, c.beta = alpha*scale, beta*scale
	c.samples = b.samples + o.samples
	c.normalize()

	return c
}

// Overlaps reports whether the credible intervals of b and o intersect.
func (b *Beta) Overlaps(o *Beta) bool {
	return math.Abs(b.Estimate()-o.Estimate()) <= b.Error()+o.Error()
}
