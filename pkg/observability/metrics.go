package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the application.
// Each collector owns its registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Synchronizer metrics
	LocalMutations *prometheus.CounterVec
	Refetches      *prometheus.CounterVec
	StaleDiscards  prometheus.Counter
	DroppedCreates prometheus.Counter

	// Remote store metrics
	RemoteOperations *prometheus.CounterVec
	RemoteDuration   *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec

	// Change feed metrics
	FeedEvents        prometheus.Counter
	FeedSubscriptions prometheus.Gauge
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LocalMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "local_mutations_total",
				Help:      "Optimistic mutations applied to the in-memory list collection",
			},
			[]string{"operation"},
		),
		Refetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refetches_total",
				Help:      "Full list refetches by outcome",
			},
			[]string{"outcome"},
		),
		StaleDiscards: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_fetch_discards_total",
				Help:      "Fetch results discarded because newer state existed",
			},
		),
		DroppedCreates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_list_creates_total",
				Help:      "List creations dropped by the single-flight guard",
			},
		),
		RemoteOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_operations_total",
				Help:      "Total number of remote store operations",
			},
			[]string{"operation", "backend", "status"},
		),
		RemoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_operation_duration_seconds",
				Help:      "Remote store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
		FeedEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "change_feed_events_total",
				Help:      "Change notifications received from the remote store",
			},
		),
		FeedSubscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "change_feed_subscriptions",
				Help:      "Currently open change feed subscriptions",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.LocalMutations,
		c.Refetches,
		c.StaleDiscards,
		c.DroppedCreates,
		c.RemoteOperations,
		c.RemoteDuration,
		c.BreakerState,
		c.FeedEvents,
		c.FeedSubscriptions,
	)

	return c
}

// RecordRemote records the outcome and latency of a remote store call
func (c *Collector) RecordRemote(operation, backend string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.RemoteOperations.WithLabelValues(operation, backend, status).Inc()
	c.RemoteDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}
