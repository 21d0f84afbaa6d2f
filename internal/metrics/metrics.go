// Package metrics holds the Prometheus collectors of the relay and the HTTP
// middleware recording request counts and latencies.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Number of HTTP requests served by the relay.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests served by the relay.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

var (
	// UploadsTotal counts finished uploads by their terminal state.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_uploads_total",
			Help: "Number of uploads by terminal pipeline state.",
		},
		[]string{"state"},
	)

	// StepDuration observes each pipeline step: stage, archive, initiate, unstage.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_upload_step_duration_seconds",
			Help:    "Duration of the upload pipeline steps.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 180, 600},
		},
		[]string{"step"},
	)

	// StagedBytes counts the bytes written to the staging directory.
	StagedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_staged_bytes_total",
			Help: "Bytes written to the staging directory.",
		},
	)

	// RemoteRequestsTotal counts calls to the transcoding service.
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_remote_requests_total",
			Help: "Calls to the remote transcoding service.",
		},
		[]string{"operation", "result"},
	)
)

// Middleware records the count and duration of every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Replace the video id segment so every job shares one label value.
func normalizePath(path string) string {
	switch {
	case path == "/upload", path == "/videos", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/video/") && len(path) > len("/video/"):
		return "/video/{videoId}"
	}
	return "other"
}
