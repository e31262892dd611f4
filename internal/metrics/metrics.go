// Package metrics exposes Prometheus collectors for job and render activity.
//
// All recording methods are safe to call on a nil *Collectors, so components
// can be built without metrics in tests and one-shot CLI commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "podcast"

// Label values for segment outcomes.
const (
	SegmentSynthesized = "synthesized"
	SegmentSkipped     = "skipped"
)

// Collectors groups the service's metrics on a private registry.
type Collectors struct {
	registry      *prometheus.Registry
	jobsTotal     *prometheus.CounterVec
	jobsInFlight  *prometheus.GaugeVec
	segmentsTotal *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec
	renderSeconds prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Collectors {
	registry := prometheus.NewRegistry()

	collectorSet := &Collectors{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs that reached a terminal state, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		jobsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently running on this worker, by kind.",
		}, []string{"kind"}),
		segmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Speech segments processed during renders, by outcome.",
		}, []string{"outcome"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Backoff retries performed, by call site.",
		}, []string{"call_site"}),
		renderSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Wall-clock time spent rendering one episode.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	registry.MustRegister(
		collectorSet.jobsTotal,
		collectorSet.jobsInFlight,
		collectorSet.segmentsTotal,
		collectorSet.retriesTotal,
		collectorSet.renderSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return collectorSet
}

// Registry returns the private registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// JobStarted marks a job of kind as running.
func (c *Collectors) JobStarted(kind string) {
	if c == nil {
		return
	}

	c.jobsInFlight.WithLabelValues(kind).Inc()
}

// JobFinished records a terminal outcome for a job of kind.
func (c *Collectors) JobFinished(kind, outcome string) {
	if c == nil {
		return
	}

	c.jobsInFlight.WithLabelValues(kind).Dec()
	c.jobsTotal.WithLabelValues(kind, outcome).Inc()
}

// SegmentProcessed counts one speech segment with the given outcome.
func (c *Collectors) SegmentProcessed(outcome string) {
	if c == nil {
		return
	}

	c.segmentsTotal.WithLabelValues(outcome).Inc()
}

// RetryAttempted counts one backoff at callSite.
func (c *Collectors) RetryAttempted(callSite string) {
	if c == nil {
		return
	}

	c.retriesTotal.WithLabelValues(callSite).Inc()
}

// ObserveRender records the duration of one render.
func (c *Collectors) ObserveRender(elapsed time.Duration) {
	if c == nil {
		return
	}

	c.renderSeconds.Observe(elapsed.Seconds())
}
