package resolver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the resolver.
type Metrics struct {
	resolutionsTotal   *prometheus.CounterVec
	publishesTotal     prometheus.Counter
	changesTotal       *prometheus.CounterVec
	watcherExitsTotal  *prometheus.CounterVec
	subscribersActive  prometheus.Gauge
	subscriberQueueLen *prometheus.GaugeVec
	bootstrapDuration  prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance with all resolver metrics registered
// on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_resolutions_total",
				Help: "Total number of Resolve calls by outcome",
			},
			[]string{"outcome"},
		),

		publishesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "resolver_publishes_total",
				Help: "Total number of recomputed results published to subscribers",
			},
		),

		changesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_changes_total",
				Help: "Total number of source changes applied by source and reason",
			},
			[]string{"source", "reason"},
		),

		watcherExitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_watcher_exits_total",
				Help: "Total number of source watcher loop exits by source and reason",
			},
			[]string{"source", "reason"},
		),

		subscribersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "resolver_subscribers_active",
				Help: "Number of currently registered Watch subscribers",
			},
		),

		subscriberQueueLen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resolver_subscriber_queue_depth",
				Help: "Pending results queued per subscriber; grows without bound for stalled subscribers",
			},
			[]string{"subscriber"},
		),

		bootstrapDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "resolver_bootstrap_duration_seconds",
				Help:    "Duration of the one-time source snapshot bootstrap",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		m.resolutionsTotal,
		m.publishesTotal,
		m.changesTotal,
		m.watcherExitsTotal,
		m.subscribersActive,
		m.subscriberQueueLen,
		m.bootstrapDuration,
	)

	m.registry = registry
	return m
}

// Handler returns an HTTP handler exposing the resolver metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry for embedding into a larger
// metrics surface.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) recordResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordPublish() {
	if m == nil {
		return
	}
	m.publishesTotal.Inc()
}

func (m *Metrics) recordChange(source, reason string) {
	if m == nil {
		return
	}
	m.changesTotal.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) recordWatcherExit(source, reason string) {
	if m == nil {
		return
	}
	m.watcherExitsTotal.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) subscriberAdded() {
	if m == nil {
		return
	}
	m.subscribersActive.Inc()
}

func (m *Metrics) subscriberRemoved(id string) {
	if m == nil {
		return
	}
	m.subscribersActive.Dec()
	m.subscriberQueueLen.DeleteLabelValues(id)
}

func (m *Metrics) setSubscriberQueueLen(id string, depth int) {
	if m == nil {
		return
	}
	m.subscriberQueueLen.WithLabelValues(id).Set(float64(depth))
}

func (m *Metrics) observeBootstrap(seconds float64) {
	if m == nil {
		return
	}
	m.bootstrapDuration.Observe(seconds)
}
