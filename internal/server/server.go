// Package server exposes the client registry and the status log over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"ovpn-issuer/internal/audit"
	"ovpn-issuer/internal/registry"
)

// Authenticator guards every route that is not public.
type Authenticator interface {
	Middleware(next http.Handler) http.Handler
}

// EventLister reads the audit trail.
type EventLister interface {
	List(ctx context.Context, limit int) ([]audit.Event, error)
}

// Options wires a Server.
type Options struct {
	Registry *registry.Registry
	Auth     Authenticator
	// Events is optional; without it /api/events returns an empty list.
	Events    EventLister
	StatusLog string
	Logger    zerolog.Logger
}

// Server handles HTTP requests.
type Server struct {
	registry  *registry.Registry
	auth      Authenticator
	events    EventLister
	statusLog string
	log       zerolog.Logger
}

// New creates an HTTP server.
func New(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	return &Server{
		registry:  opts.Registry,
		auth:      opts.Auth,
		events:    opts.Events,
		statusLog: opts.StatusLog,
		log:       opts.Logger.With().Str("component", "http").Logger(),
	}, nil
}

// Router constructs the http.Handler with all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Use(s.auth.Middleware)
		api.Get("/health", s.handleHealth)
		api.Get("/clients", s.handleListClients)
		api.Post("/clients", s.handleIssueClient)
		api.Get("/clients/{name}", s.handleInspectClient)
		api.Get("/clients/{name}/profile", s.handleFetchProfile)
		api.Delete("/clients/{name}", s.handleRevokeClient)
		api.Get("/status", s.handleStatus)
		api.Get("/summary", s.handleSummary)
		api.Get("/events", s.handleEvents)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
