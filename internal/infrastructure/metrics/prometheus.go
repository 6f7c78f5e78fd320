// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "abrpack"

var (
	// EncodesTotal tracks finished tier encodes.
	// Labels:
	//   - tier: 720p, 1080p
	//   - status: succeeded, failed
	EncodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encodes_total",
			Help:      "Total number of tier encodes by outcome",
		},
		[]string{"tier", "status"},
	)

	// EncodeDurationSeconds observes wall time of tier encodes.
	EncodeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encode_duration_seconds",
			Help:      "Wall time of a single tier encode",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"tier"},
	)

	// ProbesTotal tracks duration probes.
	// Labels:
	//   - status: succeeded, degraded
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Total number of duration probes",
		},
		[]string{"status"},
	)

	// ThumbnailsTotal tracks poster extractions.
	// Labels:
	//   - status: succeeded, failed
	ThumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thumbnails_total",
			Help:      "Total number of thumbnail extractions",
		},
		[]string{"status"},
	)

	// JobsTotal tracks finalized jobs by overall status.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of finalized transcode jobs",
		},
		[]string{"status"},
	)

	// UploadsTotal tracks object storage uploads.
	// Labels:
	//   - kind: manifest, segment, thumbnail, master
	//   - status: success, error
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of object storage uploads",
		},
		[]string{"kind", "status"},
	)

	// CacheOperationsTotal tracks cache operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select, insert, update, migrate
	//   - table: transcode_jobs
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal tracks API requests.
	// Labels:
	//   - method: HTTP method
	//   - route: chi route pattern, e.g. /v1/jobs/{id}
	//   - code: response status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Outcome label constants.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusDegraded  = "degraded"
)

// Upload kind constants.
const (
	UploadManifest  = "manifest"
	UploadSegment   = "segment"
	UploadThumbnail = "thumbnail"
	UploadMaster    = "master"
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis = "redis"
)

// DB query type constants.
const (
	DBQuerySelect  = "select"
	DBQueryInsert  = "insert"
	DBQueryUpdate  = "update"
	DBQueryMigrate = "migrate"
)

// Table name constants.
const (
	TableTranscodeJobs = "transcode_jobs"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
