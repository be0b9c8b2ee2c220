// Package api exposes the HTTP surface: provider webhook intake and the
// operator API for enrollments and the dead-letter queue.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prospectly/outreach-engine/internal/config"
	"github.com/prospectly/outreach-engine/internal/ratelimit"
	"github.com/prospectly/outreach-engine/internal/service/deadletter"
	"github.com/prospectly/outreach-engine/internal/service/enrollment"
	"github.com/prospectly/outreach-engine/internal/service/ingest"
)

// Server is the HTTP server for the engine.
type Server struct {
	config   config.ServerConfig
	handler  http.Handler
	handlers *Handlers
	server   *http.Server
	router   *chi.Mux
}

// NewServer wires the services into a routed HTTP server.
func NewServer(
	cfg config.ServerConfig,
	webhookCfg config.WebhookConfig,
	ingestSvc *ingest.Service,
	enrollmentSvc *enrollment.Service,
	deadletterSvc *deadletter.Service,
	guard *ratelimit.Guard,
) *Server {
	handlers := NewHandlers(ingestSvc, enrollmentSvc, deadletterSvc, guard, webhookCfg.MaxBodyBytes)
	router := SetupRoutes(handlers)

	return &Server{
		config:   cfg,
		handler:  router,
		handlers: handlers,
		router:   router,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
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
