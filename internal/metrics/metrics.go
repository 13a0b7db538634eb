// Package metrics exposes Prometheus counters for directory operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector holds the counters on a private registry so tests can create as
// many collectors as they need.
type Collector struct {
	registry *prometheus.Registry

	Operations     *prometheus.CounterVec
	Batches        *prometheus.CounterVec
	CascadeDeletes *prometheus.CounterVec
	SideEffects    *prometheus.CounterVec
}

// NewCollector creates and registers the counters under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Directory operations by outcome kind",
			},
			[]string{"operation", "outcome"},
		),
		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Conditional updates issued by batched operations",
			},
			[]string{"operation"},
		),
		CascadeDeletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cascade_deletes_total",
				Help:      "Subdirectory deletions performed by the cascade deleter",
			},
			[]string{"outcome"},
		),
		SideEffects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "side_effect_failures_total",
				Help:      "Best-effort writes that failed and were only logged",
			},
			[]string{"kind"},
		),
	}
	c.registry.MustRegister(c.Operations, c.Batches, c.CascadeDeletes, c.SideEffects)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Operation counts one finished operation. A nil collector is a no-op.
func (c *Collector) Operation(name, outcome string) {
	if c == nil {
		return
	}
	c.Operations.WithLabelValues(name, outcome).Inc()
}

// Batch counts one conditional update issued by a batched operation.
func (c *Collector) Batch(name string) {
	if c == nil {
		return
	}
	c.Batches.WithLabelValues(name).Inc()
}

// CascadeDelete counts one subdirectory deletion attempt.
func (c *Collector) CascadeDelete(outcome string) {
	if c == nil {
		return
	}
	c.CascadeDeletes.WithLabelValues(outcome).Inc()
}

// SideEffectFailed counts a best-effort write that failed.
func (c *Collector) SideEffectFailed(kind string) {
	if c == nil {
		return
	}
	c.SideEffects.WithLabelValues(kind).Inc()
}

// Snapshot returns the current value of every counter, keyed by metric name
// and label values, for environments without a scrape endpoint.
func (c *Collector) Snapshot() (map[string]float64, error) {
	if c == nil {
		return nil, nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += "," + lp.GetName() + "=" + lp.GetValue()
			}
			out[name] = m.GetCounter().GetValue()
		}
	}
	return out, nil
}
