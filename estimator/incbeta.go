package estimator

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mathext"
)

const (
	// quantileIterations bounds the Newton-Raphson/bisection quantile search.
	quantileIterations = 100

	// tableShapeMax is the largest shape parameter served from the table.
	// Fractional shapes are interpolated between grid points.
	tableShapeMax = 32

	// exactConcentrationMax is the largest alpha+beta for which quantiles are
	// searched. Above it the normal approximation is used.
	exactConcentrationMax = 512
)

var (
	halfWidthTable     [tableShapeMax][tableShapeMax]float64
	halfWidthTableOnce sync.Once
)

// regIncBeta returns the regularized incomplete Beta function I_x(a, b).
// ok is false when the evaluation did not produce a finite value.
func regIncBeta(a, b, x float64) (float64, bool) {
	if x <= 0 {
		return 0, true
	}
	if x >= 1 {
		return 1, true
	}

	v := mathext.RegIncBeta(a, b, x)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return v, true
}

// betaDensity returns the Beta(a, b) density at x in (0,1).
func betaDensity(a, b, x, lnB float64) float64 {
	return math.Exp((a-1)*math.Log(x) + (b-1)*math.Log1p(-x) - lnB)
}

// invRegIncBeta returns x such that I_x(a, b) = p.
//
// Newton-Raphson steps are taken while they stay inside the current bracket;
// otherwise the bracket is bisected. ok is false when the search did not
// converge, in which case callers fall back to the normal approximation.
func invRegIncBeta(a, b, p float64) (float64, bool) {
	if p <= 0 {
		return 0, true
	}
	if p >= 1 {
		return 1, true
	}

	lnB := mathext.Lbeta(a, b)
	lo, hi := 0.0, 1.0

	// Start from the normal approximation of the quantile.
	n := a + b
	x := a/n + zScore(p)*math.Sqrt(a*b/(n*n*(n+1)))
	x = math.Min(math.Max(x, 1e-6), 1-1e-6)

	for range quantileIterations {
		f, ok := regIncBeta(a, b, x)
		if !ok {
			return x, false
		}
		f -= p
		if math.Abs(f) < 1e-14 {
			return x, true
		}
		if f < 0 {
			lo = x
		} else {
			hi = x
		}

		next := x - f/betaDensity(a, b, x, lnB)
		if math.IsNaN(next) || next <= lo || next >= hi {
			next = (lo + hi) / 2
		}
		if math.Abs(next-x) < 1e-13 {
			return next, true
		}
		x = next
	}

	return x, false
}

// exactHalfWidth computes the credible interval half width of Beta(a, b) on
// [0,1] from its quantiles. ok is false on non-convergence.
func exactHalfWidth(a, b, level float64) (float64, bool) {
	lower, ok := invRegIncBeta(a, b, (1-level)/2)
	if !ok {
		return 0, false
	}
	upper, ok := invRegIncBeta(a, b, (1+level)/2)
	if !ok {
		return 0, false
	}

	return (upper - lower) / 2, true
}

func buildHalfWidthTable() {
	for i := range tableShapeMax {
		for j := range tableShapeMax {
			a, b := float64(i+1), float64(j+1)
			hw, ok := exactHalfWidth(a, b, DefaultLevel)
			if !ok {
				hw = normalHalfWidth(a, b, DefaultLevel)
			}
			halfWidthTable[i][j] = hw
		}
	}
}

// tableIndex returns the table index of an integral shape parameter.
func tableIndex(shape float64) (int, bool) {
	r := math.Round(shape)
	if r < 1 || r > tableShapeMax || math.Abs(shape-r) > 1e-9 {
		return 0, false
	}

	return int(r) - 1, true
}

// tableHalfWidth interpolates the default-level half width of Beta(a, b)
// bilinearly on the table grid. ok is false outside [1, tableShapeMax]^2.
func tableHalfWidth(a, b float64) (float64, bool) {
	if a < 1 || b < 1 || a > tableShapeMax || b > tableShapeMax {
		return 0, false
	}
	halfWidthTableOnce.Do(buildHalfWidthTable)

	if i, okA := tableIndex(a); okA {
		if j, okB := tableIndex(b); okB {
			return halfWidthTable[i][j], true
		}
	}

	i0, fa := gridCell(a)
	j0, fb := gridCell(b)
	h00 := halfWidthTable[i0][j0]
	h10 := halfWidthTable[i0+1][j0]
	h01 := halfWidthTable[i0][j0+1]
	h11 := halfWidthTable[i0+1][j0+1]

	return (1-fa)*(1-fb)*h00 + fa*(1-fb)*h10 + (1-fa)*fb*h01 + fa*fb*h11, true
}

// gridCell returns the lower table index around shape and the fractional
// position within the cell. The last cell is used for shape == tableShapeMax.
func gridCell(shape float64) (int, float64) {
	i := int(math.Floor(shape)) - 1
	if i >= tableShapeMax-1 {
		i = tableShapeMax - 2
	}

	return i, shape - float64(i+1)
}

// halfWidth returns the credible interval half width of Beta(a, b) on [0,1].
func halfWidth(a, b, level float64) float64 {
	if level == DefaultLevel {
		if hw, ok := tableHalfWidth(a, b); ok {
			return hw
		}
	}

	if a+b > exactConcentrationMax {
		return normalHalfWidth(a, b, level)
	}

	if hw, ok := exactHalfWidth(a, b, level); ok {
		return hw
	}

	return normalHalfWidth(a, b, level)
}
