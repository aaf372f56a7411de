package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// Engines are single-threaded, but a Registry drives many engines from
// different goroutines, so implementations must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	PartitionMetrics
	EngineMetrics
	FeedMetrics
}

// PartitionMetrics defines metrics for partition topology changes.
type PartitionMetrics interface {
	// RecordGroupCount sets the current number of live groups (gauge metric).
	//
	// Parameters:
	//   - kind: Engine kind ("agreement", "collusion")
	//   - count: Number of live groups
	RecordGroupCount(kind string, count int)

	// RecordMerge records a merge of two groups.
	//
	// Parameters:
	//   - kind: Engine kind
	//   - size: Size of the resulting group
	RecordMerge(kind string, size int)

	// RecordSplit records a split of one element out of a group.
	//
	// Parameters:
	//   - kind: Engine kind
	//   - reason: Split reason ("contradiction", "suspected")
	RecordSplit(kind string, reason string)
}

// EngineMetrics defines metrics for observation processing.
type EngineMetrics interface {
	// RecordObservation records an observation applied to an engine.
	//
	// Parameters:
	//   - kind: Engine kind
	//   - outcome: 1 for increase, 0 for decrease
	RecordObservation(kind string, outcome int)

	// RecordReadaptation records a readaptation pass after the reference group changed.
	//
	// Parameters:
	//   - cells: Number of cells recomputed
	RecordReadaptation(cells int)
}

// FeedMetrics defines metrics for the NATS observation feed.
type FeedMetrics interface {
	// RecordFeedMessage records the handling result of one feed message.
	//
	// Parameters:
	//   - result: "ack", "nak" or "term"
	RecordFeedMessage(result string)

	// ObserveFeedLatency observes message handling latency in seconds.
	ObserveFeedLatency(seconds float64)
}
