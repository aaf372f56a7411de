package simdeg

// Option configures a Tracker or a Registry with optional dependencies.
type Option func(*trackerOptions)

// trackerOptions holds optional Tracker configuration.
type trackerOptions struct {
	metrics MetricsCollector
	logger  Logger
	debug   bool
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewTracker and NewRegistry
//
// Example:
//
//	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "simdeg")
//	reg, err := simdeg.NewRegistry(cfg, simdeg.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *trackerOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewTracker and NewRegistry
//
// Example:
//
//	logger := logging.NewSlogDefault()
//	tr, err := simdeg.NewTracker(cfg, simdeg.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *trackerOptions) {
		o.logger = logger
	}
}

// WithDebug enables partition invariant checks after every mutation. A
// violation panics, so this is meant for tests and debugging sessions.
//
// Parameters:
//   - enabled: true to check invariants
//
// Returns:
//   - Option: Functional option for NewTracker and NewRegistry
func WithDebug(enabled bool) Option {
	return func(o *trackerOptions) {
		o.debug = enabled
	}
}
