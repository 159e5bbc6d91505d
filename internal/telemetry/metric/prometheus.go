package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "layerkv"

// Command results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Sync directions.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Store metrics
	MemoryBytes   prometheus.Gauge
	CapacityBytes prometheus.Gauge
	StackDepth    prometheus.Gauge
	ExpiredKeys   prometheus.Counter

	// Replication metrics
	SyncCommands *prometheus.CounterVec
	Propagated   *prometheus.CounterVec
}

// NewRegistry creates a registry with every store metric registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands dispatched, by verb and result",
		}, []string{"verb", "result"}),

		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent executing a command under the store lock",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"verb"}),

		MemoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_bytes",
			Help:      "Memory-tier usage of the active layer",
		}),

		CapacityBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capacity_bytes",
			Help:      "Memory-tier budget",
		}),

		StackDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stack_depth",
			Help:      "Number of layers, including the base",
		}),

		ExpiredKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_keys_total",
			Help:      "Keys removed by the TTL reclaimer",
		}),

		SyncCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_commands_total",
			Help:      "Commands carried by full-state synchronization",
		}, []string{"direction"}),

		Propagated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagated_commands_total",
			Help:      "Mutating commands forwarded to peers, by result",
		}, []string{"result"}),
	}

	r.registry.MustRegister(
		r.CommandsTotal,
		r.CommandDuration,
		r.MemoryBytes,
		r.CapacityBytes,
		r.StackDepth,
		r.ExpiredKeys,
		r.SyncCommands,
		r.Propagated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// MustRegister registers additional collectors.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.registry.MustRegister(cs...)
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		Registry: r.registry,
	})
}

// ObserveCommand records one dispatched command.
func (r *Registry) ObserveCommand(verb string, ok bool, seconds float64) {
	if r == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultError
	}
	r.CommandsTotal.WithLabelValues(verb, result).Inc()
	r.CommandDuration.WithLabelValues(verb).Observe(seconds)
}

// ObserveStore records the store gauges.
func (r *Registry) ObserveStore(memoryBytes, capacityBytes int64, depth int) {
	if r == nil {
		return
	}
	r.MemoryBytes.Set(float64(memoryBytes))
	r.CapacityBytes.Set(float64(capacityBytes))
	r.StackDepth.Set(float64(depth))
}

// ObserveExpired records keys removed by the reclaimer.
func (r *Registry) ObserveExpired(n int) {
	if r == nil {
		return
	}
	r.ExpiredKeys.Add(float64(n))
}

// ObserveSync records commands sent or received during synchronization.
func (r *Registry) ObserveSync(direction string, n int) {
	if r == nil {
		return
	}
	r.SyncCommands.WithLabelValues(direction).Add(float64(n))
}

// ObservePropagation records one forwarded command.
func (r *Registry) ObservePropagation(ok bool) {
	if r == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultError
	}
	r.Propagated.WithLabelValues(result).Inc()
}
