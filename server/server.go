package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viant/seqindex/service"
	"golang.org/x/time/rate"
)

const (
	defaultMaxUploadBytes = 1 << 30
	multipartMemory       = 32 << 20
	shutdownTimeout       = 10 * time.Second
)

// Option configures a Server.
type Option func(s *Server)

// WithMetrics exposes metrics on /metrics and records request outcomes.
func WithMetrics(metrics *Metrics) Option {
	return func(s *Server) { s.metrics = metrics }
}

// WithUploadLimit throttles uploads to perSecond with the given burst; zero disables it.
func WithUploadLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMaxUploadBytes caps the accepted upload body.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) { s.maxUploadBytes = n }
}

// WithLogf sets a printf-style logger.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Server) { s.logf = logf }
}

// Server exposes the service over HTTP.
type Server struct {
	service        *service.Service
	router         *chi.Mux
	metrics        *Metrics
	limiter        *rate.Limiter
	maxUploadBytes int64
	logf           func(format string, args ...any)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.printf("server: listening on %s", listener.Addr())
		errCh <- srv.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.printf("server: stopped")
		return nil
	}
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	if s.logf != nil {
		s.router.Use(middleware.RequestLogger(&accessLog{logf: s.logf}))
	}
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	s.router.Route("/api/sequence", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/upload", s.handleUploadStatus)
		r.Get("/job", s.handleJob)
		r.Post("/query", s.handleQuery)
		r.Get("/record/{id}", s.handleSequence)
	})
}

func (s *Server) printf(format string, args ...any) {
	if s.logf != nil {
		s.logf(format, args...)
	}
}

// New creates a Server over svc.
func New(svc *service.Service, opts ...Option) *Server {
	s := &Server{service: svc, router: chi.NewRouter(), maxUploadBytes: defaultMaxUploadBytes}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}
