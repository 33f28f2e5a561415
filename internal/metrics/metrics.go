// Package metrics exposes Prometheus metrics for rule evaluation and the HTTP API.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Veraticus/glrules/internal/model"
	"github.com/Veraticus/glrules/internal/storage"
)

const namespace = "glrules"

// StatsSource reports the stored row counts exported as gauges.
type StatsSource interface {
	Stats(ctx context.Context) (storage.Stats, error)
}

// Collector owns every metric the service exports.
type Collector struct {
	stats StatsSource

	evaluations        *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	evaluationMatches  prometheus.Histogram
	malformedPatterns  prometheus.Counter
	suggesterErrors    prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	rateLimited  prometheus.Counter

	rules                  prometheus.Gauge
	activeRules            prometheus.Gauge
	applications           prometheus.Gauge
	overriddenApplications prometheus.Gauge
	corrections            prometheus.Gauge
}

// New creates a collector. stats may be nil, in which case the store gauges
// stay at zero.
func New(stats StatsSource) *Collector {
	c := &Collector{stats: stats}

	c.evaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evaluations_total",
		Help:      "Line item evaluations by final suggestion source",
	}, []string{"source"})
	c.evaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evaluation_duration_seconds",
		Help:      "Time spent evaluating a line item, including rule loading",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})
	c.evaluationMatches = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evaluation_matches",
		Help:      "Rules with a positive score per evaluation",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
	})
	c.malformedPatterns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_vendor_patterns_total",
		Help:      "Vendor patterns that failed to compile when rules were loaded",
	})
	c.suggesterErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "suggester_errors_total",
		Help:      "AI suggestion requests that failed",
	})

	c.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route pattern and status code",
	}, []string{"method", "route", "status"})
	c.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	c.rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_requests_total",
		Help:      "Requests rejected by the per-owner rate limiter",
	})

	c.rules = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rules",
		Help:      "Stored rules across all owners",
	})
	c.activeRules = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_rules",
		Help:      "Stored active rules across all owners",
	})
	c.applications = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "applications",
		Help:      "Recorded rule applications",
	})
	c.overriddenApplications = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "overridden_applications",
		Help:      "Recorded applications later corrected by a user",
	})
	c.corrections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "corrections",
		Help:      "Recorded GL code corrections",
	})

	return c
}

// Register adds every metric to reg.
func (c *Collector) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.evaluations,
		c.evaluationDuration,
		c.evaluationMatches,
		c.malformedPatterns,
		c.suggesterErrors,
		c.httpRequests,
		c.httpDuration,
		c.rateLimited,
		c.rules,
		c.activeRules,
		c.applications,
		c.overriddenApplications,
		c.corrections,
	)
}

// Refresh recomputes the store gauges (call on each scrape or periodically).
func (c *Collector) Refresh(ctx context.Context) error {
	if c.stats == nil {
		return nil
	}
	st, err := c.stats.Stats(ctx)
	if err != nil {
		return err
	}
	c.rules.Set(float64(st.Rules))
	c.activeRules.Set(float64(st.ActiveRules))
	c.applications.Set(float64(st.Applications))
	c.overriddenApplications.Set(float64(st.OverriddenApplications))
	c.corrections.Set(float64(st.Corrections))
	return nil
}

// RecordEvaluation counts one evaluation.
func (c *Collector) RecordEvaluation(source model.SuggestionSource, matches int, elapsed time.Duration) {
	c.evaluations.WithLabelValues(string(source)).Inc()
	c.evaluationMatches.Observe(float64(matches))
	c.evaluationDuration.Observe(elapsed.Seconds())
}

// RecordMalformedPattern counts a vendor pattern that failed to compile.
// Owners are not exported as a label.
func (c *Collector) RecordMalformedPattern(_ string) {
	c.malformedPatterns.Inc()
}

// RecordSuggesterError counts a failed AI suggestion request.
func (c *Collector) RecordSuggesterError() {
	c.suggesterErrors.Inc()
}

// RecordRequest counts an HTTP request against its route pattern.
func (c *Collector) RecordRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordRateLimited counts a request rejected by the rate limiter.
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Inc()
}

func statusLabel(status int) string {
	if status == 0 {
		status = 200
	}
	return strconv.Itoa(status)
}
