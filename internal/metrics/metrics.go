// Package metrics exposes pgmock's runtime counters and gauges as a
// Prometheus collector, bound to a private registry so multiple servers
// in the same process (as in tests) never collide.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every Prometheus metric pgmock's connection manager
// reports.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive   prometheus.Gauge
	connectionsIdle     prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	queriesExecuted     prometheus.Counter
	authFailures        *prometheus.CounterVec
	scramExchange       prometheus.Histogram
	shutdownDrain       prometheus.Histogram
	idleReaperEvictions prometheus.Counter
}

// New creates and registers pgmock's metrics against a fresh registry.
// Safe to call repeatedly (e.g. in tests): each call owns an independent
// registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgmock_connections_active",
			Help: "Number of connections currently past authentication.",
		}),
		connectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgmock_connections_idle",
			Help: "Number of connections with no activity in the idle reaper's current window.",
		}),
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgmock_connections_accepted_total",
			Help: "Total number of connections accepted by the listener.",
		}),
		connectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgmock_connections_rejected_total",
			Help: "Total number of connections rejected, by reason.",
		}, []string{"reason"}),
		queriesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgmock_queries_executed_total",
			Help: "Total number of statements executed across all connections.",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgmock_auth_failures_total",
			Help: "Total number of failed authentication attempts, by method.",
		}, []string{"method"}),
		scramExchange: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pgmock_scram_exchange_duration_seconds",
			Help:    "Duration of the SCRAM-SHA-256 authentication exchange.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		shutdownDrain: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pgmock_shutdown_drain_duration_seconds",
			Help:    "Time spent draining connections during a graceful shutdown.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		idleReaperEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgmock_idle_reaper_evictions_total",
			Help: "Total number of connections force-closed by the idle reaper.",
		}),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.connectionsIdle,
		c.connectionsAccepted,
		c.connectionsRejected,
		c.queriesExecuted,
		c.authFailures,
		c.scramExchange,
		c.shutdownDrain,
		c.idleReaperEvictions,
	)

	return c
}

// SetConnectionCounts updates the active/idle connection gauges.
func (c *Collector) SetConnectionCounts(active, idle int) {
	c.connectionsActive.Set(float64(active))
	c.connectionsIdle.Set(float64(idle))
}

// ConnectionAccepted increments the accepted-connections counter.
func (c *Collector) ConnectionAccepted() {
	c.connectionsAccepted.Inc()
}

// ConnectionRejected increments the rejected-connections counter for reason.
func (c *Collector) ConnectionRejected(reason string) {
	c.connectionsRejected.WithLabelValues(reason).Inc()
}

// QueryExecuted increments the total executed-statements counter.
func (c *Collector) QueryExecuted() {
	c.queriesExecuted.Inc()
}

// AuthFailure increments the auth-failure counter for method.
func (c *Collector) AuthFailure(method string) {
	c.authFailures.WithLabelValues(method).Inc()
}

// SCRAMExchange observes the duration of one SCRAM authentication exchange.
func (c *Collector) SCRAMExchange(d time.Duration) {
	c.scramExchange.Observe(d.Seconds())
}

// ShutdownDrain observes the duration of a graceful shutdown's drain phase.
func (c *Collector) ShutdownDrain(d time.Duration) {
	c.shutdownDrain.Observe(d.Seconds())
}

// IdleReaperEviction increments the idle-reaper eviction counter.
func (c *Collector) IdleReaperEviction() {
	c.idleReaperEvictions.Inc()
}
