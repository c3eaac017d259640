// Package health provides HTTP endpoints for liveness and connection
// status reporting.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/kvguard/internal/kv"
	"github.com/vietddude/kvguard/internal/kv/conn"
)

// SystemStatus represents the reported health state.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	client *kv.Client
	server *http.Server
}

// NewServer creates a new health server for the given client.
func NewServer(client *kv.Client, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		client: client,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func statusFor(state conn.State) SystemStatus {
	switch state {
	case conn.Connected:
		return StatusHealthy
	case conn.Degraded, conn.Connecting:
		return StatusDegraded
	default:
		return StatusCritical
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := statusFor(s.client.State())

	response := map[string]string{"status": string(status)}
	w.Header().Set("Content-Type", "application/json")

	if status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	stats := s.client.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status SystemStatus `json:"status"`
		conn.Stats
	}{
		Status: statusFor(s.client.State()),
		Stats:  stats,
	})
}
