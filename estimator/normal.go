package estimator

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// normalPDF returns the standard normal density at x.
func normalPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

// normalCDF returns the standard normal distribution function at x.
func normalCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// zScore returns the standard normal quantile for probability p.
func zScore(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	return distuv.UnitNormal.Quantile(p)
}

// normalHalfWidth approximates the credible interval half width of Beta(a, b)
// on [0,1] with a normal distribution of matching variance.
func normalHalfWidth(a, b, level float64) float64 {
	n := a + b
	sd := math.Sqrt(a * b / (n * n * (n + 1)))
	hw := zScore((1+level)/2) * sd

	return math.Min(hw, 0.5)
}
