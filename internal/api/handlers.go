package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"stealthpay/internal/indexer"
	"stealthpay/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultDeadLetterLimit = 20
	maxDeadLetterLimit     = 200
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Indexer     indexer.Status      `json:"indexer"`
	Payments    models.PaymentStats `json:"payments"`
	DeadLetters []models.DeadLetter `json:"recent_dead_letters"`
}

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]interface{}{
		"service":     "stealthpay",
		"version":     "1.0.0",
		"description": "Stealth payment registry indexer for Stellar",
		"endpoints": map[string]string{
			"GET /":        "This page - Service information",
			"GET /health":  "Health check endpoint (pings the event store)",
			"GET /status":  "Indexer progress, payment counts and recent dead letters (supports ?limit=)",
			"GET /metrics": "Prometheus metrics for monitoring",
		},
	}

	s.sendJSON(w, http.StatusOK, info)
}

// handleHealth returns health status
// GET /health - Health check for monitoring systems
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		slog.Warn("Health check failed", "error", err)
		s.sendError(w, "Event store unreachable", http.StatusServiceUnavailable)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "stealthpay-indexer",
	}

	s.sendJSON(w, http.StatusOK, health)
}

// handleStatus reports indexer progress
// GET /status?limit=20
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultDeadLetterLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed >= 0 && parsed <= maxDeadLetterLimit {
			limit = parsed
		}
	}

	ctx := r.Context()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		slog.Error("Failed to load payment stats", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	letters, err := s.store.ListDeadLetters(ctx, limit)
	if err != nil {
		slog.Error("Failed to list dead letters", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if letters == nil {
		letters = []models.DeadLetter{}
	}

	s.sendJSON(w, http.StatusOK, StatusResponse{
		Indexer:     s.indexer.Status(),
		Payments:    *stats,
		DeadLetters: letters,
	})
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}
