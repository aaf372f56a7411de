package feed

import "github.com/lccanon/simdeg/types"

// Option configures a Consumer or a Publisher.
type Option func(*options)

type options struct {
	logger    types.Logger
	metrics   types.MetricsCollector
	retrySeed int64
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation
//
// Returns:
//   - Option: Functional option for NewConsumer and NewPublisher
func WithLogger(logger types.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewConsumer
func WithMetrics(metrics types.MetricsCollector) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithRetrySeed makes the iterator restart jitter deterministic. Zero, the
// default, uses the package-level PRNG.
func WithRetrySeed(seed int64) Option {
	return func(o *options) {
		o.retrySeed = seed
	}
}
