package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	invocations  *prometheus.CounterVec
	viewDuration *prometheus.HistogramVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	loadedAt     prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labdash_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labdash_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}, []string{"route"}),
		invocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labdash_view_invocations_total",
			Help: "View pipeline runs by view and outcome (ok, placeholder, error).",
		}, []string{"view", "outcome"}),
		viewDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labdash_view_duration_seconds",
			Help:    "Time spent in a view pipeline.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"view"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "labdash_figure_cache_hits_total",
			Help: "Figure cache hits.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "labdash_figure_cache_misses_total",
			Help: "Figure cache misses.",
		}),
		loadedAt: f.NewGauge(prometheus.GaugeOpts{
			Name: "labdash_dataset_loaded_timestamp_seconds",
			Help: "Unix time the serving dataset snapshot was loaded.",
		}),
	}
}

// observe is a views.Observer.
func (m *metrics) observe(view string, elapsed time.Duration, placeholder bool, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case placeholder:
		outcome = "placeholder"
	}
	m.invocations.WithLabelValues(view, outcome).Inc()
	m.viewDuration.WithLabelValues(view).Observe(elapsed.Seconds())
}
