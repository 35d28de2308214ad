// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer for HTTP: it decides which URL maps to
// which handler, which middleware runs on which routes, and how the server
// stops gracefully. The services themselves are built by internal/app and
// handed in.
//
// WHY SEPARATE FROM main.go?
// Handler() returns the fully routed http.Handler, so tests drive the real
// routing table through httptest without opening a port.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/commit-streak/internal/app"
	"github.com/sakif/commit-streak/internal/auth"
	"github.com/sakif/commit-streak/internal/handler"
	"github.com/sakif/commit-streak/internal/middleware"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The app (and with it the database) is owned by the caller; Start does
// not close it.
type Server struct {
	router *chi.Mux
	app    *app.App
	logger *slog.Logger
}

// New builds the router. Sessions need a JWT secret, so an app without a
// TokenService is rejected.
func New(a *app.App) (*Server, error) {
	if a.Tokens == nil {
		return nil, errors.New("server: JWT_SECRET is required to serve the API")
	}

	s := &Server{
		router: chi.NewRouter(),
		app:    a,
		logger: a.Logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                 → database ping
// GET    /metrics                 → Prometheus scrape
// GET    /auth/github/login       → redirect to GitHub (when OAuth is configured)
// GET    /auth/github/callback    → finish sign-in, store the GitHub token
// POST   /auth/logout             → clear the session cookie
// GET    /api/me                  → profile                    [auth]
// PUT    /api/me/timezone         → set UTC offset             [auth]
// DELETE /api/me/credential       → forget the GitHub token    [auth]
// GET    /api/streak              → stored streak              [auth]
// POST   /api/streak/refresh      → fetch and advance          [auth]
// GET    /api/commits/{date}      → one day's commits          [auth]
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs before Logger so every log line carries the ID; Recoverer
// turns a panic into a 500 instead of killing the process.
func (s *Server) setupRoutes() {
	cfg := s.app.Config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === Operational ===
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", s.app.Metrics.Handler())

	// === Auth ===
	var provider handler.OAuthProvider
	if cfg.Auth.OAuthEnabled() {
		provider = auth.NewGitHubProvider(
			cfg.Auth.GitHubClientID,
			cfg.Auth.GitHubClientSecret,
			cfg.Auth.GitHubCallbackURL,
		)
	} else {
		s.logger.Warn("GITHUB_CLIENT_ID/SECRET not set: browser sign-in is disabled")
	}
	authHandler := handler.NewAuthHandler(provider, s.app.Auth, s.app.Tokens.TTL(), cfg.Server.SecureCookies, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		if provider != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
		r.Post("/logout", authHandler.HandleLogout)
	})

	// === API ===
	activityHandler := handler.NewActivityHandler(s.app.Activity, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.app.Tokens))
		// A refresh that outlives this is abandoned by the caller; the
		// shared work behind it keeps its own deadline.
		r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))

		r.Get("/me", authHandler.HandleMe)
		r.Put("/me/timezone", activityHandler.HandleSetTimezone)
		r.Delete("/me/credential", authHandler.HandleDisconnect)

		r.Get("/streak", activityHandler.HandleGetStreak)
		r.Post("/streak/refresh", activityHandler.HandleRefresh)
		r.Get("/commits/{date}", activityHandler.HandleCommitsForDay)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.app.DB.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests (a refresh may be mid-fetch) up to 30s
func (s *Server) Start() error {
	port := s.app.Config.Server.Port
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Refreshes are bounded by the request timeout; leave room to write.
		WriteTimeout: s.app.Config.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", port)),
			slog.String("database", s.app.Config.Database.Path),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
