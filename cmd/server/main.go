// Package main is the entry point for the commit streak HTTP server.
//
// MAIN PACKAGE IN GO:
// main stays minimal: read configuration, create the logger, hand both to
// internal/app and internal/server, and exit non-zero on failure.
//
// CONFIGURATION:
// A .env file in the working directory is loaded first (missing is fine),
// then config.Load layers defaults → TOML file at $CONFIG_PATH → env vars.
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/sakif/commit-streak/internal/app"
	"github.com/sakif/commit-streak/internal/config"
	"github.com/sakif/commit-streak/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Validate already checked the level parses.
	level, _ := cfg.Server.Level()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	srv, err := server.New(a)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		a.Close()
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		a.Close()
		os.Exit(1)
	}
}
