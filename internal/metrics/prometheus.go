package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lccanon/simdeg/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered on first use, so constructing a
// PrometheusCollector that is never exercised leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// Partition metrics
	groups *prometheus.GaugeVec
	merges *prometheus.CounterVec
	splits *prometheus.CounterVec
	sizes  *prometheus.HistogramVec

	// Engine metrics
	observations  *prometheus.CounterVec
	readaptations prometheus.Counter
	readaptCells  prometheus.Histogram

	// Feed metrics
	feedMessages *prometheus.CounterVec
	feedLatency  prometheus.Histogram
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "simdeg" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "simdeg"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.groups = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "groups",
			Help:      "Current number of live groups by engine kind.",
		}, []string{"kind"})

		p.merges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "merges_total",
			Help:      "Total group merges by engine kind.",
		}, []string{"kind"})

		p.splits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "splits_total",
			Help:      "Total group splits by engine kind and reason.",
		}, []string{"kind", "reason"})

		p.sizes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "partition",
			Name:      "merged_group_size",
			Help:      "Size of groups produced by a merge.",
			Buckets:   []float64{2, 4, 8, 16, 32, 64, 128, 256, 512},
		}, []string{"kind"})

		p.observations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "observations_total",
			Help:      "Total observations applied by engine kind and outcome.",
		}, []string{"kind", "outcome"})

		p.readaptations = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "readaptations_total",
			Help:      "Total readaptation passes after the reference group changed.",
		})

		p.readaptCells = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "readaptation_cells",
			Help:      "Number of cells recomputed per readaptation pass.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		})

		p.feedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "feed",
			Name:      "messages_total",
			Help:      "Total feed messages by handling result (ack, nak, term).",
		}, []string{"result"})

		p.feedLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "feed",
			Name:      "handle_seconds",
			Help:      "Feed message handling latency in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		})

		p.reg.MustRegister(p.groups)
		p.reg.MustRegister(p.merges)
		p.reg.MustRegister(p.splits)
		p.reg.MustRegister(p.sizes)
		p.reg.MustRegister(p.observations)
		p.reg.MustRegister(p.readaptations)
		p.reg.MustRegister(p.readaptCells)
		p.reg.MustRegister(p.feedMessages)
		p.reg.MustRegister(p.feedLatency)
	})
}

// RecordGroupCount sets the live group gauge for kind.
func (p *PrometheusCollector) RecordGroupCount(kind string, count int) {
	p.ensureRegistered()
	p.groups.WithLabelValues(kind).Set(float64(count))
}

// RecordMerge counts a merge and observes the merged size.
func (p *PrometheusCollector) RecordMerge(kind string, size int) {
	p.ensureRegistered()
	p.merges.WithLabelValues(kind).Inc()
	p.sizes.WithLabelValues(kind).Observe(float64(size))
}

// RecordSplit counts a split by reason.
func (p *PrometheusCollector) RecordSplit(kind string, reason string) {
	p.ensureRegistered()
	p.splits.WithLabelValues(kind, reason).Inc()
}

// RecordObservation counts an applied observation.
func (p *PrometheusCollector) RecordObservation(kind string, outcome int) {
	p.ensureRegistered()
	p.observations.WithLabelValues(kind, strconv.Itoa(outcome)).Inc()
}

// RecordReadaptation counts a readaptation pass and observes its size.
func (p *PrometheusCollector) RecordReadaptation(cells int) {
	p.ensureRegistered()
	p.readaptations.Inc()
	p.readaptCells.Observe(float64(cells))
}

// RecordFeedMessage counts a feed message by result.
func (p *PrometheusCollector) RecordFeedMessage(result string) {
	p.ensureRegistered()
	p.feedMessages.WithLabelValues(result).Inc()
}

// ObserveFeedLatency observes feed handling latency.
func (p *PrometheusCollector) ObserveFeedLatency(seconds float64) {
	p.ensureRegistered()
	p.feedLatency.Observe(seconds)
}
