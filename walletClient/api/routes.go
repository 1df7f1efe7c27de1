package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes for the API server
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// API v1 endpoints
	r.HandleFunc("/api/v1/networks", s.handleNetworks).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/networks/{network}", s.handleNetwork).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/networks/{network}/snapshot", s.handleNetworkSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/networks/{network}/history", s.handleNetworkHistory).Methods(http.MethodGet)

	return r
}
