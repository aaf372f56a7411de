// Package partition implements a dynamic grouping of elements with one shared
// interval estimator per pair of live groups.
//
// Groups live in an arena and are addressed by GroupID handles. Handles are
// never reused: a merge, a split or a partial removal always produces new
// handles and retires the old ones, so handle equality is group identity.
//
// Cells are keyed by unordered handle pairs, so the estimator for (A,B) and
// (B,A) is the same object by construction. Every live pair, including each
// group with itself, owns exactly one cell.
//
// A Partition is not safe for concurrent use. Callers that share one across
// goroutines serialize access externally.
package partition
