package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// CoordinationStatus describes the node's share of the symbol universe.
type CoordinationStatus struct {
	Enabled           bool `json:"enabled"`
	OwnedSymbols      int  `json:"owned_symbols"`
	ConfiguredSymbols int  `json:"configured_symbols"`
}

// HealthPayload is the /health response body.
type HealthPayload struct {
	Status        string             `json:"status"`
	NodeID        string             `json:"node_id"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	Coordination  CoordinationStatus `json:"coordination"`
}

// StatusFunc supplies the current health payload on each request.
type StatusFunc func() HealthPayload

// Server serves /metrics and /health.
type Server struct {
	httpServer *http.Server
}

// NewServer wires the telemetry routes on the given listen address.
func NewServer(addr string, metrics *Metrics, status StatusFunc) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			log.Error().Err(err).Msg("Health response encoding failed")
		}
	}).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Telemetry server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
