// Package api exposes the capture pipeline, catalog, and selection store
// over HTTP.
//
// All request and response bodies are JSON except audio uploads, which are
// WAV or raw PCM. Pipeline failure modes map onto status codes: a corrupt
// catalog is 422, an unreachable transcription backend is 503, and a capture
// timeout is 504.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/medivox/internal/catalog"
	"github.com/MrWong99/medivox/internal/health"
	"github.com/MrWong99/medivox/internal/observe"
	"github.com/MrWong99/medivox/internal/pipeline"
	"github.com/MrWong99/medivox/internal/selection"
)

// maxAudioBody caps audio uploads at 25 MiB, roughly 13 minutes of 16 kHz
// mono PCM — far beyond any plausible capture.
const maxAudioBody = 25 << 20

// Server wires the HTTP handlers to their collaborators. The selection
// store is optional; when nil the selection endpoints answer 501.
type Server struct {
	pipeline    *pipeline.Pipeline
	catalog     *catalog.Handle
	catalogPath string
	store       selection.Store
	health      *health.Handler
	metrics     *observe.Metrics
	logger      *slog.Logger
}

// ServerOption is a functional option for configuring a [Server].
type ServerOption func(*Server)

// WithSelectionStore enables the selection endpoints.
func WithSelectionStore(s selection.Store) ServerOption {
	return func(srv *Server) { srv.store = s }
}

// WithHealth attaches liveness/readiness endpoints.
func WithHealth(h *health.Handler) ServerOption {
	return func(srv *Server) { srv.health = h }
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(srv *Server) { srv.logger = l }
}

// WithMetrics replaces the metrics sink. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) ServerOption {
	return func(srv *Server) { srv.metrics = m }
}

// NewServer creates a [Server]. catalogPath is the file reloaded by
// POST /v1/catalog/reload.
func NewServer(p *pipeline.Pipeline, h *catalog.Handle, catalogPath string, opts ...ServerOption) *Server {
	srv := &Server{
		pipeline:    p,
		catalog:     h,
		catalogPath: catalogPath,
	}
	for _, o := range opts {
		o(srv)
	}
	if srv.logger == nil {
		srv.logger = slog.Default()
	}
	if srv.metrics == nil {
		srv.metrics = observe.DefaultMetrics()
	}
	return srv
}

// Router builds the chi router with all routes and middleware mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestMetrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/capture", s.handleCapture)
		r.Post("/match", s.handleMatch)
		r.Get("/catalog", s.handleCatalog)
		r.Post("/catalog/reload", s.handleCatalogReload)
		r.Post("/selections", s.handleSelectionCreate)
		r.Get("/selections", s.handleSelectionList)
	})

	if s.health != nil {
		s.health.Register(r)
	}
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// requestMetrics records the latency histogram and an access log line per
// request.
func (s *Server) requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = r.URL.Path
		}
		s.metrics.HTTPRequestDuration.Record(r.Context(), elapsed.Seconds(),
			metric.WithAttributes(
				observe.Attr("method", r.Method),
				observe.Attr("path", routePattern),
			),
		)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", elapsed,
		)
	})
}
