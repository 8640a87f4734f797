// Package api provides the HTTP API server for the deployment pipeline.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/automakerhq/automaker/internal/api/handlers"
	"github.com/automakerhq/automaker/internal/api/middleware"
	"github.com/automakerhq/automaker/internal/detect"
	"github.com/automakerhq/automaker/internal/events"
	"github.com/automakerhq/automaker/internal/pipeline"
	"github.com/automakerhq/automaker/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Server represents the HTTP API server.
type Server struct {
	router       chi.Router
	httpServer   *http.Server
	config       *config.Config
	orchestrator *pipeline.Orchestrator
	configs      *pipeline.ConfigStore
	broker       *events.Broker
	logger       *slog.Logger
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, orch *pipeline.Orchestrator, configs *pipeline.ConfigStore, broker *events.Broker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:       cfg,
		orchestrator: orch,
		configs:      configs,
		broker:       broker,
		logger:       logger,
	}
	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	})

	deploymentHandler := handlers.NewDeploymentHandler(s.orchestrator, s.configs, detect.NewDetector(s.logger), s.logger)
	eventStreamHandler := handlers.NewEventStreamHandler(s.broker, s.logger)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/deployment", func(r chi.Router) {
			// Streaming endpoints stay outside the request timeout.
			r.Get("/events", eventStreamHandler.Stream)
			r.Get("/events/ws", eventStreamHandler.StreamWS)

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(60 * time.Second))
				r.Get("/config", deploymentHandler.GetConfig)
				r.Put("/config", deploymentHandler.SaveConfig)
				r.Post("/propose", deploymentHandler.Propose)
				r.Post("/deploy", deploymentHandler.Deploy)
				r.Get("/status", deploymentHandler.Status)
				r.Post("/cancel", deploymentHandler.Cancel)
				r.Get("/history", deploymentHandler.History)
			})
		})
	})

	s.router = r
}

// Start starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
