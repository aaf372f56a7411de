// Package estimator provides interval-valued probability estimators.
//
// A Beta estimator tracks a quantity on a closed range [lower, upper]
// (usually [0,1]) as a Beta distribution scaled onto that range. Its two
// shape parameters accumulate success and failure evidence and never drop
// below 1. The estimate is the posterior mean and the error is the half
// width of the credible interval at the estimator's confidence level.
//
// # Error bounds
//
// Credible intervals come from the inverse regularized incomplete Beta
// function (gonum's mathext), found with a bounded number of Newton-Raphson
// steps guarded by bisection. Shape pairs up to 32 at the default level are
// served from a table computed once on first use, interpolated between
// integral shapes. Large shapes use a normal approximation, and so does any
// quantile search that fails to converge.
//
// # Algebra
//
// Arithmetic never mutates its operands; every combinator returns a new
// estimator:
//
//	sum := a.Add(b)                // independent sum, moment matched
//	hi := a.Max(b)                 // Clark's approximation of max(a, b)
//	lo := a.Min(b)                 // -max(-a, -b)
//	c, err := a.Subtract(b).TruncateRange(0, 1)
//
// Results are projected back onto the Beta family by the method of moments.
// When the requested variance is not reachable with both shapes >= 1, one
// shape is pinned to 1 and the other is solved from the mean, without ever
// exceeding the shape that matches the variance.
//
// # Run guard
//
// Estimators built WithRunGuard reset themselves to the uninformative prior
// when a run of identical samples becomes too unlikely under the current
// estimate, which lets them follow a genuine behavior change instead of
// staying locked on stale evidence.
//
// Estimators are not safe for concurrent use.
package estimator
