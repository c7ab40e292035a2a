package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"stealthpay/internal/indexer"
	"stealthpay/internal/storage"
)

// StatusSource reports the indexer state shown on /status
type StatusSource interface {
	Status() indexer.Status
}

// Server represents the HTTP API server
// Provides endpoints for Prometheus metrics, health checks and indexer status
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	store      storage.EventStore
	indexer    StatusSource
	port       int
}

// NewServer creates a new API server instance
func NewServer(port int, store storage.EventStore, ix StatusSource) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:     mux,
		store:   store,
		indexer: ix,
		port:    port,
	}

	s.registerRoutes()

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.Handle("/metrics", s.handleMetrics())
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/status", "/metrics"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
