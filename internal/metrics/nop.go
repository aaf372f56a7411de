// Package metrics provides types.MetricsCollector implementations.
package metrics

import "github.com/lccanon/simdeg/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Partitions, engines and the feed default to it
// when no collector is configured.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	tracker, err := simdeg.NewTracker(cfg, simdeg.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// OrNop returns m, or a NopMetrics when m is nil.
func OrNop(m types.MetricsCollector) types.MetricsCollector {
	if m == nil {
		return NewNop()
	}

	return m
}

// PartitionMetrics implementation

// RecordGroupCount discards the group count.
func (n *NopMetrics) RecordGroupCount(_ /* kind */ string, _ /* count */ int) {}

// RecordMerge discards the merge event.
func (n *NopMetrics) RecordMerge(_ /* kind */ string, _ /* size */ int) {}

// RecordSplit discards the split event.
func (n *NopMetrics) RecordSplit(_ /* kind */ string, _ /* reason */ string) {}

// EngineMetrics implementation

// RecordObservation discards the observation.
func (n *NopMetrics) RecordObservation(_ /* kind */ string, _ /* outcome */ int) {}

// RecordReadaptation discards the readaptation event.
func (n *NopMetrics) RecordReadaptation(_ /* cells */ int) {}

// FeedMetrics implementation

// RecordFeedMessage discards the message result.
func (n *NopMetrics) RecordFeedMessage(_ /* result */ string) {}

// ObserveFeedLatency discards the latency sample.
func (n *NopMetrics) ObserveFeedLatency(_ /* seconds */ float64) {}
