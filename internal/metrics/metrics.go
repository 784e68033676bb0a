package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all snaproll metrics
const namespace = "snaproll"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Upload pipeline metrics
var (
	// UploadsTotal counts media uploads by kind and outcome. Outcome is one of
	// accepted, denied, or failed.
	UploadsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of media upload attempts",
		},
		[]string{"kind", "outcome"},
	)

	// UploadDenialsTotal counts quota and lifecycle denials by reason
	UploadDenialsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_denials_total",
			Help:      "Total number of uploads denied by quota or gallery state checks",
		},
		[]string{"reason"},
	)

	// UploadBytes records the size of accepted uploads in bytes
	UploadBytes = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of accepted media uploads in bytes",
			// Buckets: 100KB, 500KB, 1MB, 5MB, 10MB, 50MB, 100MB, 500MB
			Buckets: []float64{1e5, 5e5, 1e6, 5e6, 1e7, 5e7, 1e8, 5e8},
		},
		[]string{"kind"},
	)

	// ThumbnailFailuresTotal counts thumbnail generation failures that resulted
	// in a degraded media record
	ThumbnailFailuresTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thumbnail_failures_total",
			Help:      "Total number of uploads stored without a thumbnail",
		},
	)
)

// Realtime fan-out metrics
var (
	// RealtimeSubscribers tracks the current number of connected gallery viewers
	RealtimeSubscribers = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_subscribers",
			Help:      "Current number of connected realtime gallery viewers",
		},
	)

	// RealtimeEventsTotal counts events fanned out to viewers by type
	RealtimeEventsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Total number of realtime events delivered to viewers",
		},
		[]string{"type"},
	)

	// RealtimeDroppedSubscribers counts viewers disconnected for falling behind
	RealtimeDroppedSubscribers = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_dropped_subscribers_total",
			Help:      "Total number of viewers disconnected because their event queue overflowed",
		},
	)
)

// Sweep metrics
var (
	// SweepGalleriesTotal counts galleries processed by the expiration sweep
	SweepGalleriesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_galleries_total",
			Help:      "Total number of galleries processed by the expiration sweep",
		},
		[]string{"outcome"}, // outcome: expired, skipped, failed
	)

	// SweepMediaDeleted counts media records removed by content deletion sweeps
	SweepMediaDeleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_media_deleted_total",
			Help:      "Total number of media items deleted by expiration sweeps",
		},
		[]string{"kind"},
	)

	// SweepBytesFreed counts storage bytes released by content deletion sweeps
	SweepBytesFreed = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_bytes_freed_total",
			Help:      "Total number of storage bytes released by expiration sweeps",
		},
	)

	// SweepDuration records how long a full sweep pass takes
	SweepDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a full expiration sweep in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)
)

// RateLimitRejections counts requests rejected by the upload rate limiter
var RateLimitRejections = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_rejections_total",
		Help:      "Total number of requests rejected by the per-identity rate limiter",
	},
)

// Init initializes the metrics registry and sets version information
func Init(version, commit, buildDate string) {
	// Register default Go metrics (memory, goroutines, GC, etc.)
	Registry.MustRegister(collectors.NewGoCollector())

	// Register process metrics (CPU, memory, file descriptors)
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Set application version info (value is always 1, info is in labels)
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
