package querycache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shnupta/porter/metric"
)

// storeMetrics holds Prometheus metrics for store operations.
type storeMetrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	sets          prometheus.Counter
	invalidations prometheus.Counter
	size          prometheus.Gauge
}

// newStoreMetrics creates and registers store metrics with the registry.
func newStoreMetrics(registry *metric.Registry, prefix string) (*storeMetrics, error) {
	m := &storeMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "porter",
			Subsystem:   "querycache",
			Name:        "hits_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "porter",
			Subsystem:   "querycache",
			Name:        "misses_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of cache misses",
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "porter",
			Subsystem:   "querycache",
			Name:        "sets_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of cache set operations",
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "porter",
			Subsystem:   "querycache",
			Name:        "invalidations_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of key invalidations",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "porter",
			Subsystem:   "querycache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current number of cached entries",
		}),
	}

	if err := registry.RegisterCounter(prefix, "cache_hits", m.hits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "cache_misses", m.misses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "cache_sets", m.sets); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "cache_invalidations", m.invalidations); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "cache_size", m.size); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *storeMetrics) recordHit() {
	m.hits.Inc()
}

func (m *storeMetrics) recordMiss() {
	m.misses.Inc()
}

func (m *storeMetrics) recordSet() {
	m.sets.Inc()
}

func (m *storeMetrics) recordInvalidation() {
	m.invalidations.Inc()
}

func (m *storeMetrics) updateSize(size int) {
	m.size.Set(float64(size))
}
