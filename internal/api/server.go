package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/observability/metrics"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/reqcontext"
)

// Server exposes the plugin admin REST API.
type Server struct {
	addr    string
	manager PluginManager
}

// NewServer constructs the admin API server.
func NewServer(addr string, manager PluginManager) *Server {
	return &Server{addr: addr, manager: manager}
}

// Router builds the chi router for the admin API, wrapping every
// route with request tracing and HTTP metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(reqcontext.Middleware)
	r.Use(s.observe)

	r.Route("/api/v1/plugins", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleDetail)
			r.Put("/enable", s.handleEnable)
			r.Put("/disable", s.handleDisable)
			r.Post("/reload", s.handleReload)
			r.Delete("/", s.handleDelete)
		})
	})
	return r
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.ObserveHTTPRequest(routePattern(r), r.Method, rec.status, time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Start runs the admin API until ctx is cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
