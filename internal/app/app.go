package app

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/molpadia/molparelay/internal/domain/repository"
	"github.com/molpadia/molparelay/internal/logging"
	"github.com/molpadia/molparelay/internal/metrics"
)

const requestIDHeader = "X-Request-Id"

type appHandler func(http.ResponseWriter, *http.Request) error

func (fn appHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := fn(w, r)
	if err == nil {
		return
	}
	logger := logging.FromContext(r.Context(), logging.Discard())
	e, ok := err.(*AppError)
	if !ok {
		e = &AppError{Code: http.StatusInternalServerError, Message: "Internal server error", Err: err}
	}
	if e.Code >= http.StatusInternalServerError {
		logger.Error(r.Context(), "request failed", "status", e.Code, "error", err)
	} else {
		logger.Warn(r.Context(), "request rejected", "status", e.Code, "error", err)
	}
	body := FailureResponse{Success: false, Message: e.Message}
	if e.Err != nil {
		body.Error = e.Err.Error()
	}
	replyJSON(w, body, e.Code)
}

type Options struct {
	Uploads        uploadPipeline
	Jobs           repository.JobReader
	Logger         logging.Logger
	MaxUploadSize  int64    // Limit of the upload body in bytes, zero for none.
	AllowedOrigins []string // CORS origins, "*" for any.
}

// Build the HTTP handler serving the relay API.
func NewHandler(opts Options) http.Handler {
	c := &controller{
		uploads:       opts.Uploads,
		jobs:          opts.Jobs,
		maxUploadSize: opts.MaxUploadSize,
	}
	r := mux.NewRouter()
	r.Use(requestLogger(opts.Logger), metrics.Middleware)
	setupRoutes(r, c)

	cors := handlers.CORS(
		handlers.AllowedOrigins(opts.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", requestIDHeader}),
		handlers.ExposedHeaders([]string{requestIDHeader}),
	)
	return cors(r)
}

// Register API endpoints to the router.
func setupRoutes(r *mux.Router, c *controller) {
	r.Methods("POST").Path("/upload").Handler(appHandler(c.uploadVideo))
	r.Methods("GET").Path("/video/{videoId}").Handler(appHandler(c.getVideo))
	r.Methods("GET").Path("/videos").Handler(appHandler(c.listVideos))
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())
}

// Tag every request with an id and attach a logger carrying it to the context.
func requestLogger(base logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			logger := base.With("request_id", id)
			start := time.Now()
			next.ServeHTTP(w, r.WithContext(logging.NewContext(r.Context(), logger)))
			logger.Info(r.Context(), "request served",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start))
		})
	}
}
