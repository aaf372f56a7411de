// Package engine turns pairwise worker observations into partition updates.
//
// AgreementEngine groups workers that keep returning the same results.
// Success samples may merge two groups once their shared estimate is both
// high and precise; a failure inside one group splits the two workers out.
//
// CollusionEngine groups workers suspected of returning the same wrong
// results. The largest group is presumed honest: a worker involved in a
// collusion success is first split out of it, and whenever the identity of
// the largest group changes the cells that did not move since the last
// snapshot are recalibrated against it.
//
// Engines are single-threaded. The root package wraps each one behind its
// own lock.
package engine
