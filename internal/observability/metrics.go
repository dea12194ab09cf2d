package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// promMetrics implements MetricsClient on top of prometheus/client_golang,
// lazily registering a series the first time a given metric name is seen.
// Grounded on the teacher's pkg/observability/prometheus_metrics.go, which
// uses the same per-name-lazy-vec registration approach.
type promMetrics struct {
	mu          sync.Mutex
	registry    *prometheus.Registry
	namespace   string
	counters    map[string]*prometheus.CounterVec
	gauges      map[string]*prometheus.GaugeVec
	histograms  map[string]*prometheus.HistogramVec
	register    func(c prometheus.Collector) error
}

// NewPrometheusMetrics creates a MetricsClient registered against reg (pass
// prometheus.NewRegistry() for test isolation, or a shared registry in
// production).
func NewPrometheusMetrics(namespace string, reg *prometheus.Registry) MetricsClient {
	m := &promMetrics{
		registry:   reg,
		namespace:  namespace,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	m.register = reg.Register
	return m
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (m *promMetrics) IncrementCounter(name string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      name,
		}, labelNames(labels))
		_ = m.register(vec)
		m.counters[name] = vec
	}
	vec.With(labels).Inc()
}

func (m *promMetrics) RecordGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      name,
		}, labelNames(labels))
		_ = m.register(vec)
		m.gauges[name] = vec
	}
	vec.With(labels).Set(value)
}

func (m *promMetrics) RecordHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vec, ok := m.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      name,
			Buckets:   prometheus.DefBuckets,
		}, labelNames(labels))
		_ = m.register(vec)
		m.histograms[name] = vec
	}
	vec.With(labels).Observe(value)
}

func (m *promMetrics) RecordDuration(name string, d time.Duration, labels map[string]string) {
	m.RecordHistogram(name, d.Seconds(), labels)
}

// noopMetrics discards everything. Used when metrics are disabled in tests.
type noopMetrics struct{}

// NewNoopMetrics returns a MetricsClient that does nothing.
func NewNoopMetrics() MetricsClient { return noopMetrics{} }

func (noopMetrics) IncrementCounter(string, map[string]string)            {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)       {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string)   {}
func (noopMetrics) RecordDuration(string, time.Duration, map[string]string) {}
