// Package server exposes the rule registry and the analyzer over a JSON
// HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chris-regnier/ctrap/internal/analyzer"
	"github.com/chris-regnier/ctrap/internal/cache"
	"github.com/chris-regnier/ctrap/internal/evaluator"
	"github.com/chris-regnier/ctrap/internal/metrics"
	"github.com/chris-regnier/ctrap/internal/rules"
)

const (
	defaultMaxBodyBytes = 8 << 20
	defaultMaxFiles     = 500
	shutdownTimeout     = 10 * time.Second
)

// Server serves the HTTP API. Rule settings changed through the API
// (template application, config import) affect every later request.
type Server struct {
	reg       *rules.Registry
	analyzer  *analyzer.Analyzer
	evaluator *evaluator.Evaluator
	collector *metrics.Collector
	cache     cache.Manager
	version   string

	maxBodyBytes int64
	maxFiles     int
	router       chi.Router
}

type Option func(*Server)

// WithEvaluator adds a gate verdict to every analyze response.
func WithEvaluator(e *evaluator.Evaluator) Option {
	return func(s *Server) { s.evaluator = e }
}

// WithCollector records analysis events and serves them on /metrics.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// WithCache caches per-file results between requests.
func WithCache(m cache.Manager) Option {
	return func(s *Server) { s.cache = m }
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMaxBodyBytes limits request bodies. Non-positive values keep the
// default.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithMaxFiles limits the number of files in one analyze request.
func WithMaxFiles(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxFiles = n
		}
	}
}

func New(reg *rules.Registry, opts ...Option) *Server {
	s := &Server{
		reg:          reg,
		version:      "dev",
		maxBodyBytes: defaultMaxBodyBytes,
		maxFiles:     defaultMaxFiles,
	}
	for _, opt := range opts {
		opt(s)
	}

	recorder := metrics.NoOpRecorder()
	if s.collector != nil {
		recorder = metrics.NewRecorder(s.collector, metrics.SourceServer)
	}
	s.analyzer = analyzer.NewAnalyzer(reg, analyzer.WithCache(s.cache), analyzer.WithRecorder(recorder))
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/rules", s.handleListRules)
	r.Get("/rules/{id}", s.handleGetRule)
	r.Get("/templates", s.handleListTemplates)
	r.Post("/templates/{name}/apply", s.handleApplyTemplate)
	r.Post("/analyze", s.handleAnalyze)
	r.Get("/config", s.handleGetConfig)
	r.Put("/config", s.handlePutConfig)
	r.Get("/metrics", s.handleMetrics)
	return r
}

// Handler returns the API handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
