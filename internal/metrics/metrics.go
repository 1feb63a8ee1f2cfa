// Package metrics provides Prometheus metrics for the HuggingSpace server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huggingspace_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huggingspace_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huggingspace_storage_operation_duration_seconds",
			Help:    "Duration of storage backend operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "success"},
	)

	storageBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huggingspace_storage_bytes_uploaded_total",
			Help: "Total bytes uploaded to object storage",
		},
	)

	storageBytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huggingspace_storage_bytes_downloaded_total",
			Help: "Total bytes downloaded from object storage",
		},
	)

	partialFileFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huggingspace_partial_file_failures_total",
			Help: "Per-file failures swallowed during batch loads and uploads",
		},
	)

	treeBuildsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huggingspace_tree_builds_total",
			Help: "Number of file-tree rebuilds",
		},
	)
)

// RecordStorageOperation records one storage backend call.
func RecordStorageOperation(operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(operation, strconv.FormatBool(success)).
		Observe(duration.Seconds())
}

// RecordUpload records uploaded payload bytes.
func RecordUpload(bytes int64) {
	storageBytesUploaded.Add(float64(bytes))
}

// RecordDownload records downloaded payload bytes.
func RecordDownload(bytes int64) {
	storageBytesDownloaded.Add(float64(bytes))
}

// RecordPartialFailure counts one swallowed per-file failure.
func RecordPartialFailure() {
	partialFileFailures.Inc()
}

// RecordTreeBuild counts one tree rebuild.
func RecordTreeBuild() {
	treeBuildsTotal.Inc()
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
