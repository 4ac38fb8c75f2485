// Package metrics provides Prometheus metrics for the package mirror (RED +
// cache-tier + job-queue + rate-limit observability). Scrapeable /metrics;
// dashboards can rely on these names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pkgmirror"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~3.8s
		},
		[]string{"method", "path"},
	)

	// MetadataCacheResultTotal counts metadata resolver outcomes by tier
	// (kv_hit, db_hit, upstream_hit, not_found) per spec.md §4.3.
	MetadataCacheResultTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_cache_result_total",
			Help:      "Metadata resolution outcomes by cache tier.",
		},
		[]string{"tier"},
	)

	// ArtifactCacheResultTotal counts artifact server X-Cache outcomes
	// (hit_kv, hit_db, miss_upstream, miss_packagist) per spec.md §4.4.
	ArtifactCacheResultTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_cache_result_total",
			Help:      "Artifact retrieval outcomes by cache tier.",
		},
		[]string{"tier"},
	)

	// ArtifactDownloadsTotal counts artifact downloads served to clients.
	ArtifactDownloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_downloads_total",
			Help:      "Total number of artifact downloads served.",
		},
	)

	// JobQueueDepth is the current depth of the in-process job queue.
	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Current depth of the in-process job queue.",
		},
	)

	// JobProcessedTotal counts processed jobs by kind and outcome.
	JobProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_processed_total",
			Help:      "Total number of jobs processed by kind and outcome.",
		},
		[]string{"kind", "outcome"}, // outcome: success, failure
	)

	// RateLimitDeniedTotal counts requests denied by the hourly rate limiter.
	RateLimitDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denied_total",
			Help:      "Total number of requests denied by the rate limiter.",
		},
		[]string{"token_id"},
	)

	// AuthOutcomeTotal counts authentication attempts by method and outcome.
	AuthOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcome_total",
			Help:      "Total number of authentication attempts by method and outcome.",
		},
		[]string{"method", "outcome"}, // method: bearer/basic, outcome: success/failure
	)

	// SyncRunsTotal counts Sync Engine runs by repository source kind and outcome.
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Total number of repository sync runs by source kind and outcome.",
		},
		[]string{"source_kind", "outcome"},
	)

	// DBQueryDurationSeconds tracks database query latency by operation type.
	DBQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~512ms
		},
		[]string{"operation"}, // operation: select, insert, update, delete, upsert
	)
)
