package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalogue",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalogue",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})

	SearchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalogue",
		Name:      "search_requests_total",
		Help:      "Total ranked searches by mode and outcome (ok, degraded, short).",
	}, []string{"mode", "outcome"})

	SearchResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalogue",
		Name:      "search_results",
		Help:      "Number of ranked results returned per search, by provenance.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"source"})

	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalogue",
		Name:      "source_requests_total",
		Help:      "Total candidate fetches by source name and result status.",
	}, []string{"source", "status"})

	SourceRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalogue",
		Name:      "source_request_duration_seconds",
		Help:      "Candidate fetch duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	SourceAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "catalogue",
		Name:      "source_available",
		Help:      "Whether a candidate source is available (1) or blocked by circuit breaker (0).",
	}, []string{"source"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalogue",
		Name:      "search_cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalogue",
		Name:      "search_cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	TMDBRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalogue",
		Name:      "tmdb_request_duration_seconds",
		Help:      "TMDB API request duration in seconds, by endpoint.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	RecsPostsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalogue",
		Name:      "recs_posts_total",
		Help:      "Daily recommendation posts by pick kind and status.",
	}, []string{"kind", "status"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SearchRequestsTotal,
		SearchResults,
		SourceRequestsTotal,
		SourceRequestDuration,
		SourceAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		TMDBRequestDuration,
		RecsPostsTotal,
	)
}
