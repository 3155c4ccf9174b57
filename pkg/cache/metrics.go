package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts fresh entries served from Redis
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postview_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	// CacheMisses counts absent or expired entries
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postview_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheStoredBytes tracks the size of stored entries
	CacheStoredBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "postview_cache_entry_bytes",
			Help:    "Size of response cache entries written to Redis",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
	)

	// ConditionalRequestsSent counts requests sent with If-None-Match or If-Modified-Since
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postview_conditional_requests_total",
			Help: "Total number of conditional upstream requests",
		},
	)

	// NotModifiedResponses counts 304 responses answered from cache
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postview_304_responses_total",
			Help: "Total number of upstream 304 Not Modified responses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postview_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
