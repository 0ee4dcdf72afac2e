package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "viewstate").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures Metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "viewstate",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records binding flush activity.
type Metrics struct {
	flushes        *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	payloadBytes   prometheus.Histogram
	payloadKeys    prometheus.Histogram
	adapterErrors  prometheus.Counter
	mergedSiblings prometheus.Counter
	computedDirty  prometheus.Counter
	bindings       prometheus.Gauge
}

// NewMetrics registers the collectors and returns them.
//
// Metrics collected:
//   - viewstate_flushes_total: flushes by mode and reason
//   - viewstate_fallbacks_total: patch-to-diff fallbacks by reason
//   - viewstate_payload_bytes: estimated payload size per flush
//   - viewstate_payload_keys: payload entries per flush
//   - viewstate_adapter_errors_total: failed adapter deliveries
//   - viewstate_merged_sibling_parents_total: parents emitted by sibling merging
//   - viewstate_computed_dirty_total: computed fields re-sent
//   - viewstate_active_bindings: mounted bindings
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushes_total",
			Help:        "Total number of binding flushes that sent a payload",
			ConstLabels: config.ConstLabels,
		}, []string{"mode", "reason"}),

		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fallbacks_total",
			Help:        "Total number of patch flushes that fell back to diff",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		payloadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "payload_bytes",
			Help:        "Estimated payload size in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(64, 4, 8), // 64B to 1MB
		}),

		payloadKeys: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "payload_keys",
			Help:        "Number of entries per payload",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 10),
		}),

		adapterErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "adapter_errors_total",
			Help:        "Total number of adapter deliveries that returned an error",
			ConstLabels: config.ConstLabels,
		}),

		mergedSiblings: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "merged_sibling_parents_total",
			Help:        "Total number of parent paths emitted in place of sibling entries",
			ConstLabels: config.ConstLabels,
		}),

		computedDirty: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "computed_dirty_total",
			Help:        "Total number of computed fields re-sent after a change",
			ConstLabels: config.ConstLabels,
		}),

		bindings: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_bindings",
			Help:        "Number of mounted bindings",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// ObserveFlush records a flush that sent a payload.
func (m *Metrics) ObserveFlush(mode, reason string, keys, bytes int) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(mode, reason).Inc()
	m.payloadKeys.Observe(float64(keys))
	m.payloadBytes.Observe(float64(bytes))
}

// ObserveFallback records a patch flush that fell back to diff.
func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// AdapterError records a failed adapter delivery.
func (m *Metrics) AdapterError() {
	if m == nil {
		return
	}
	m.adapterErrors.Inc()
}

// MergedSiblings records n parents emitted by sibling merging.
func (m *Metrics) MergedSiblings(n int) {
	if m == nil || n == 0 {
		return
	}
	m.mergedSiblings.Add(float64(n))
}

// ComputedDirty records n computed fields re-sent.
func (m *Metrics) ComputedDirty(n int) {
	if m == nil || n == 0 {
		return
	}
	m.computedDirty.Add(float64(n))
}

// BindingMounted adjusts the active bindings gauge.
func (m *Metrics) BindingMounted(delta int) {
	if m == nil {
		return
	}
	m.bindings.Add(float64(delta))
}
