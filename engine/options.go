package engine

import "github.com/lccanon/simdeg/types"

// Option configures an engine.
type Option func(*options)

type options struct {
	logger  types.Logger
	metrics types.MetricsCollector
	debug   bool
}

// WithLogger sets the logger for restructuring decisions.
func WithLogger(l types.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDebug enables partition invariant assertions after every mutation.
func WithDebug(enabled bool) Option {
	return func(o *options) {
		o.debug = enabled
	}
}
