package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server exposes provider group stats, persisted history and metrics over HTTP
type Server struct {
	client    WalletClientInterface
	snapshots SnapshotReader // nil when persistence is disabled
	logger    zerolog.Logger
	server    *http.Server
	now       func() time.Time
}

// NewServer creates a new Server instance
func NewServer(client WalletClientInterface, snapshots SnapshotReader, logger zerolog.Logger, port int) *Server {
	s := &Server{
		client:    client,
		snapshots: snapshots,
		logger:    logger.With().Str("component", "query_server").Logger(),
		now:       time.Now,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.setupRoutes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return s
}

// Handler returns the router serving all routes
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("query server is nil")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %s: %w", s.server.Addr, err)
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("query server listening")
	go func() {
		err := s.server.Serve(ln)
		switch err {
		case nil:
			s.logger.Info().Msg("Query server stopped normally")
		case http.ErrServerClosed:
			s.logger.Info().Msg("Query server closed gracefully")
		default:
			s.logger.Error().Err(err).Msg("Query server error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
