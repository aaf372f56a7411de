// Package simdeg estimates the hidden grouping of a worker population from
// noisy pairwise observations.
//
// Workers of a volunteer or grid computing marketplace return results for
// duplicated jobs. Two workers that return the same result agree; two workers
// caught returning the same certified-wrong result collude. simdeg groups
// workers that behave identically and reports calibrated probabilities, an
// estimate plus a confidence interval half width, for any subset of workers.
//
// # Quick Start
//
//	import "github.com/lccanon/simdeg"
//
//	tr, err := simdeg.NewTracker(simdeg.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tr.AddWorkers([]string{"w1", "w2", "w3"})
//	_ = tr.Apply(simdeg.Observation{Kind: simdeg.KindAgreement, WorkerA: "w1", WorkerB: "w2", Outcome: 1})
//	_ = tr.Apply(simdeg.Observation{Kind: simdeg.KindCollusion, WorkerA: "w2", WorkerB: "w3", Outcome: 1})
//
//	likelihood, _ := tr.CollusionLikelihood([]string{"w2", "w3"})
//	fmt.Println(likelihood) // estimate±error
//
// # Architecture
//
// The module is layered, leaves first:
//
//   - estimator: Beta distributed interval estimators and their moment
//     matching algebra (add, subtract, min, max, merge, truncate)
//   - partition: a generic arena of groups with one shared estimator per
//     unordered pair of live groups
//   - engine: the agreement and collusion policies driving merges, splits
//     and readaptation from observations
//   - simdeg: Tracker (both engines of one pool behind one lock each) and
//     Registry (one tracker per pool)
//   - feed: JetStream consumer and publisher carrying observations
//
// Engines are single-threaded. Tracker serializes access with one lock per
// engine; Registry shards by pool.
//
// # Observations
//
// The scheduling layer reports observations of four kinds: agreement and
// collusion outcomes between two workers, and join/leave events of one
// worker. Registry.Apply routes them by pool; feed.Consumer does the same for
// observations published on NATS.
package simdeg
