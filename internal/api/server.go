package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/sequence-engine/internal/config"
)

// Server wraps the HTTP listener for the engine's endpoints.
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer builds the router from deps.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = cfg.AllowedOrigins
	}
	return &Server{config: cfg, handler: NewRouter(deps)}
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.handler,
		ReadTimeout:       time.Duration(s.config.ReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// A trigger request stays open for a whole scheduler run.
		WriteTimeout: time.Duration(s.config.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
