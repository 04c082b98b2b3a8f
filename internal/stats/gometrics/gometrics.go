// Package gometrics provides a stats collector backed by a go-metrics registry.
package gometrics

import (
	"math"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/discochess/bucketstore/internal/stats"
)

// Compile-time check that Collector implements stats.Collector.
var _ stats.Collector = (*Collector)(nil)

// sampleSize is the reservoir size of each histogram.
const sampleSize = 1028

// Collector implements stats.Collector on a go-metrics registry.
// Histogram observations are stored in microseconds because go-metrics
// histograms hold integers.
type Collector struct {
	registry metrics.Registry
}

// New creates a collector writing into registry.
// If registry is nil, metrics.DefaultRegistry is used.
func New(registry metrics.Registry) *Collector {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	return &Collector{registry: registry}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() metrics.Registry {
	return c.registry
}

// IncCounter increments a counter metric.
func (c *Collector) IncCounter(name string, delta int64) {
	metrics.GetOrRegisterCounter(name, c.registry).Inc(delta)
}

// SetGauge sets a gauge metric.
func (c *Collector) SetGauge(name string, value int64) {
	metrics.GetOrRegisterGauge(name, c.registry).Update(value)
}

// ObserveHistogram records a value in a histogram.
func (c *Collector) ObserveHistogram(name string, value float64) {
	h := c.registry.GetOrRegister(name, func() metrics.Histogram {
		return metrics.NewHistogram(metrics.NewExpDecaySample(sampleSize, 0.015))
	}).(metrics.Histogram)
	h.Update(int64(math.Round(value * 1e6)))
}
