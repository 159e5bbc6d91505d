// Package metric provides Prometheus metrics for LayerKV.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: the registry of store metrics and its HTTP handler
//   - collector.go: scrape-time collectors reading engine counters
//
// Every Registry owns a private prometheus.Registry, so several stores can
// run in one process (and in one test binary) without collisions.
//
// Metrics are exposed at /metrics in Prometheus text format.
package metric
