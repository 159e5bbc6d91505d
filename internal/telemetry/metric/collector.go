package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CounterSource reports a cumulative count at scrape time.
type CounterSource func() uint64

// Collector exposes counters kept elsewhere (for example as atomics inside
// the storage engine) without copying them on every update.
type Collector struct {
	descs   []*prometheus.Desc
	sources []CounterSource
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Counter adds a counter named layerkv_<name> read from src.
func (c *Collector) Counter(name, help string, src CounterSource) *Collector {
	c.descs = append(c.descs, prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", name), help, nil, nil))
	c.sources = append(c.sources, src)
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for i, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(c.sources[i]()))
	}
}
