// Package app is the composition root: it builds every long-lived component
// from a Config and hands the wired services to the server and the CLI.
//
// DEPENDENCY GRAPH:
//
//	config ─→ sqlite.DB (sealed with auth.CredentialBox)
//	       ─→ github.ClientPool ─→ fetcher.Fetcher ─┐
//	       ─→ metrics.Metrics ──────────────────────┼─→ service.ActivityService
//	       ─→ auth.TokenService ───────────────────→ service.AuthService
package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/commit-streak/internal/auth"
	"github.com/sakif/commit-streak/internal/clock"
	"github.com/sakif/commit-streak/internal/config"
	"github.com/sakif/commit-streak/internal/fetcher"
	"github.com/sakif/commit-streak/internal/github"
	"github.com/sakif/commit-streak/internal/metrics"
	"github.com/sakif/commit-streak/internal/model"
	sqliteRepo "github.com/sakif/commit-streak/internal/repository/sqlite"
	"github.com/sakif/commit-streak/internal/service"
)

// App owns the database connection; callers must Close it.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *sqliteRepo.DB
	Metrics  *metrics.Metrics
	Clients  *github.ClientPool
	Activity *service.ActivityService
	Auth     *service.AuthService

	// Tokens is nil when no JWT secret is configured; only the server
	// needs it.
	Tokens *auth.TokenService
}

// New wires the application. The credential secret is mandatory: without
// it stored GitHub tokens could be neither written nor read.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	box, err := auth.NewCredentialBox(cfg.Auth.CredentialSecret)
	if err != nil {
		return nil, fmt.Errorf("app: credential secret: %w", err)
	}

	var tokens *auth.TokenService
	if cfg.Auth.JWTSecret != "" {
		tokens, err = auth.NewTokenService(cfg.Auth.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("app: jwt secret: %w", err)
		}
		tokens = tokens.WithTTL(cfg.Auth.SessionTTL)
	}

	clk := clock.Real{}

	if err := ensureDir(cfg.Database.Path); err != nil {
		return nil, err
	}
	db, err := sqliteRepo.New(cfg.Database.Path, sqliteRepo.WithSealer(box), sqliteRepo.WithClock(clk))
	if err != nil {
		return nil, fmt.Errorf("app: opening database: %w", err)
	}

	m := metrics.New()

	clients := github.NewClientPool(cfg.GitHub,
		github.WithLogger(logger),
		github.WithMetrics(m),
		github.WithClock(clk),
	)
	f := fetcher.New(upstreamFor(clients), cfg.Fetcher, clk, logger, m)

	activity := service.NewActivityService(db, f, cfg.Activity, logger,
		service.WithClock(clk),
		service.WithMetrics(m),
		service.WithCredentialRejected(clients.Forget),
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Metrics:  m,
		Clients:  clients,
		Activity: activity,
		Auth:     service.NewAuthService(db, db, tokens, logger),
		Tokens:   tokens,
	}, nil
}

// upstreamFor adapts the client pool to the fetcher's SourceFunc.
func upstreamFor(clients *github.ClientPool) fetcher.SourceFunc {
	return func(cred model.Credential) (fetcher.Upstream, error) {
		c, err := clients.For(cred)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ensureDir creates the database's parent directory (like `mkdir -p`).
func ensureDir(dbPath string) error {
	if dbPath == ":memory:" || filepath.Dir(dbPath) == "." {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("app: creating database directory %s: %w", dir, err)
	}
	return nil
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
