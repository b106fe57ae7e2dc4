// Package serve exposes the orchestrator over an HTTP JSON API with a
// Server-Sent Events stream of lifecycle events and Prometheus metrics.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/monkeygold/automaton"
)

// Config holds server configuration.
type Config struct {
	Addr string

	// Parent is the identity written into every child's genesis document.
	Parent automaton.Identity
}

// Server is the HTTP server for the automaton control API.
type Server struct {
	orch      *automaton.Orchestrator
	broker    *EventBroker
	cfg       Config
	startedAt time.Time
}

// New creates a new Server. broker may be nil, in which case the event
// stream never delivers anything.
func New(orch *automaton.Orchestrator, broker *EventBroker, cfg Config) *Server {
	if broker == nil {
		broker = NewEventBroker()
	}
	return &Server{
		orch:      orch,
		broker:    broker,
		cfg:       cfg,
		startedAt: time.Now(),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	s.RegisterHTTP(r)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// RegisterHTTP adds the API routes to r.
func (s *Server) RegisterHTTP(r chi.Router) {
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/limits", s.handleLimits)
	r.Get("/api/events", s.handleSSE)
	r.Get("/api/modifications", s.handleListModifications)

	r.Route("/api/children", func(r chi.Router) {
		r.Get("/", s.handleListChildren)
		r.Post("/", s.handleSpawn)
		r.Get("/{id}", s.handleGetChild)
		r.Post("/{id}/start", s.handleStart)
		r.Post("/{id}/poll", s.handlePoll)
		r.Post("/{id}/messages", s.handleSend)
	})
}

// Start listens for HTTP requests and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("automaton serve started", "addr", s.cfg.Addr)
		fmt.Printf("API:     http://localhost%s/api/children\n", s.cfg.Addr)
		fmt.Printf("Metrics: http://localhost%s/metrics\n", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errCh:
		return err
	}

	// Closing the broker ends every SSE handler so Shutdown can drain.
	s.broker.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	return nil
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
