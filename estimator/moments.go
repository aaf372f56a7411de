package estimator

import "math"

// fromMoments returns the shape parameters of the Beta on [lower, upper]
// matching the given mean and variance.
//
// When the variance is infeasible with both shapes >= 1 the shape on the side
// of the nearest bound is pinned to 1. The free shape follows the mean but is
// never larger than the one matching the variance, so a mean on a bound does
// not turn a wide estimator into a certain one.
func fromMoments(mean, variance, lower, upper float64) (alpha, beta float64) {
	w := upper - lower
	m := (mean - lower) / w
	m = math.Min(math.Max(m, 0), 1)

	v := variance / (w * w)
	if math.IsNaN(v) || v < minVariance {
		v = minVariance
	}

	k := m*(1-m)/v - 1
	alpha, beta = m*k, (1-m)*k
	if alpha < minShape || beta < minShape || math.IsNaN(k) {
		alpha, beta = pinnedShape(m, pinnedForVariance(v))
	}

	return boundShape(alpha, beta)
}

// pinnedShape pins one shape to 1 and solves the other from the mean m on
// [0,1], capped at limit. For Beta(a, 1) the mean is a/(a+1); for Beta(1, b)
// it is 1/(1+b).
func pinnedShape(m, limit float64) (alpha, beta float64) {
	limit = math.Min(math.Max(limit, minShape), maxConcentration-minShape)

	if m >= 0.5 {
		if m >= 1 {
			return limit, minShape
		}

		return math.Min(m/(1-m), limit), minShape
	}

	if m <= 0 {
		return minShape, limit
	}

	return minShape, math.Min((1-m)/m, limit)
}

// pinnedVariance is the variance of Beta(1, b), and of Beta(b, 1).
func pinnedVariance(b float64) float64 {
	return b / ((1 + b) * (1 + b) * (2 + b))
}

// pinnedForVariance returns the free shape b >= 1 of Beta(1, b) whose variance
// is v. pinnedVariance decreases on [1, inf), so the search is a bisection in
// log space. Variances above the uniform's 1/12 give 1.
func pinnedForVariance(v float64) float64 {
	hi := maxConcentration - minShape
	if v >= pinnedVariance(minShape) {
		return minShape
	}
	if v <= pinnedVariance(hi) {
		return hi
	}

	lo, up := math.Log(minShape), math.Log(hi)
	for range 64 {
		mid := (lo + up) / 2
		if pinnedVariance(math.Exp(mid)) > v {
			lo = mid
		} else {
			up = mid
		}
	}

	return math.Exp((lo + up) / 2)
}

// boundShape applies the same bounds as Beta.normalize to a bare shape pair.
func boundShape(alpha, beta float64) (float64, float64) {
	if n := alpha + beta; n > maxConcentration {
		s := maxConcentration / n
		alpha *= s
		beta *= s
	}

	return math.Max(alpha, minShape), math.Max(beta, minShape)
}

// clarkMax returns the mean and variance of max(X, Y) for independent normal
// X and Y with the given moments (Clark, 1961).
func clarkMax(m1, v1, m2, v2 float64) (mean, variance float64) {
	a := math.Sqrt(v1 + v2)
	if a == 0 {
		return math.Max(m1, m2), 0
	}

	z := (m1 - m2) / a
	cdf, cdfNeg, pdf := normalCDF(z), normalCDF(-z), normalPDF(z)

	mean = m1*cdf + m2*cdfNeg + a*pdf
	second := (m1*m1+v1)*cdf + (m2*m2+v2)*cdfNeg + (m1+m2)*a*pdf

	return mean, math.Max(second-mean*mean, 0)
}
