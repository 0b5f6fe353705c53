package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/basis/internal/infra/chain"
)

// Server exposes health and Prometheus metrics endpoints.
type Server struct {
	syncer *Syncer
	server *http.Server
}

// NewServer creates the metrics/health server for a syncer.
func NewServer(syncer *Syncer, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		syncer: syncer,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if s.syncer.db != nil {
		if err := s.syncer.db.Health(r.Context()); err != nil {
			status = "critical"
			code = http.StatusServiceUnavailable
		}
	}

	response := map[string]any{
		"status": status,
		"chains": chain.SupportedChains(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
