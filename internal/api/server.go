// Package api serves the repricer's HTTP surface: the Walmart webhook,
// manual repricing and reset endpoints, health, stats, Prometheus metrics,
// and a WebSocket stream of live pricing decisions.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repricer/internal/config"
)

// Server runs the HTTP API.
type Server struct {
	cfg      config.ServerConfig
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds the router and wires the handlers.
func NewServer(cfg config.ServerConfig, handlers *Handlers, hub *Hub, logger *slog.Logger) *Server {
	r := mux.NewRouter()
	r.HandleFunc("/walmart/webhook", handlers.HandleWalmartWebhook).Methods(http.MethodPost)
	r.HandleFunc("/pricing/manual", handlers.HandleManualReprice).Methods(http.MethodPost)
	r.HandleFunc("/pricing/reset", handlers.HandlePriceReset).Methods(http.MethodPost)
	r.HandleFunc("/health", handlers.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", handlers.HandleStats).Methods(http.MethodGet)
	r.HandleFunc("/stats/reset", handlers.HandleStatsReset).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the hub and serves until Stop. Blocks; run in a goroutine.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down: no new requests are accepted,
// in-flight ones get ShutdownTimeout to finish.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
