package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the governor's Prometheus instruments on a private
// registry. All consumers treat a nil *Metrics as "instrumentation off".
type Metrics struct {
	registry *prometheus.Registry

	PoolUsageRatio      prometheus.Gauge
	PressureLevel       prometheus.Gauge
	AllocationsActive   prometheus.Gauge
	AllocationsTotal    prometheus.Counter
	AllocationsRejected prometheus.Counter
	EvictionsTotal      prometheus.Counter
	CompressionsTotal   prometheus.Counter
	BytesFreedTotal     prometheus.Counter

	AdaptationsTotal *prometheus.CounterVec
	ActiveProfile    *prometheus.GaugeVec
}

// NewMetrics creates a Metrics set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		PoolUsageRatio: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "governor",
			Subsystem: "memory",
			Name:      "pool_usage_ratio",
			Help:      "Logical pool usage ratio (0-1)",
		}),
		PressureLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "governor",
			Subsystem: "memory",
			Name:      "pressure_level",
			Help:      "Current memory pressure level (0=normal .. 3=critical)",
		}),
		AllocationsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "governor",
			Subsystem: "memory",
			Name:      "allocations_active",
			Help:      "Number of live tracked allocations",
		}),
		AllocationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Subsystem: "memory",
			Name:      "allocations_total",
			Help:      "Total number of successful allocations",
		}),
		AllocationsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Subsystem: "memory",
			Name:      "allocations_rejected_total",
			Help:      "Total number of allocations rejected after recovery failed",
		}),
		EvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Subsystem: "memory",
			Name:      "evictions_total",
			Help:      "Total number of evicted allocations",
		}),
		CompressionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Subsystem: "memory",
			Name:      "compressions_total",
			Help:      "Total number of allocation compressions",
		}),
		BytesFreedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Subsystem: "memory",
			Name:      "bytes_freed_total",
			Help:      "Total bytes freed by compression, eviction and cleanup",
		}),

		AdaptationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governor",
			Subsystem: "adapt",
			Name:      "adaptations_total",
			Help:      "Total number of applied adaptation rules",
		}, []string{"rule"}),
		ActiveProfile: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "governor",
			Subsystem: "adapt",
			Name:      "active_profile",
			Help:      "Active quality profile (1 for the current profile, 0 otherwise)",
		}, []string{"profile"}),
	}
}

// Registry exposes the underlying registry for promhttp handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// SetActiveProfile flips the active_profile gauge to the given id.
func (m *Metrics) SetActiveProfile(id string, all []string) {
	if m == nil {
		return
	}
	for _, p := range all {
		value := 0.0
		if p == id {
			value = 1.0
		}
		m.ActiveProfile.WithLabelValues(p).Set(value)
	}
}
