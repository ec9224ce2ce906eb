// Command dadcam-migrate is a one-shot schema migrator for both the
// app store and a library store, run before dadcamd starts against a
// new install or an upgraded binary. Grounded on the teacher's
// cmd/pg-migrator/main.go shape (bounded startup context, migrate,
// exit), retargeted from a single Postgres pool to this project's two
// embedded SQLite stores.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dadcam.systems/core/internal/appstore"
	"dadcam.systems/core/internal/config"
	"dadcam.systems/core/internal/libstore"
)

func main() {
	slog.Info("starting dadcam-migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.AppDataDir, 0o755); err != nil {
		slog.Error("failed to create app data dir", "error", err)
		os.Exit(1)
	}
	app, err := appstore.Open(filepath.Join(cfg.AppDataDir, "app.db"))
	if err != nil {
		slog.Error("failed to open app store", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	if err := app.Migrate(ctx); err != nil {
		slog.Error("failed to migrate app store", "error", err)
		os.Exit(1)
	}
	slog.Info("app store migrated")

	if cfg.LibraryRoot == "" {
		slog.Info("no library root configured, skipping library store migration")
		return
	}

	libDir := filepath.Join(cfg.LibraryRoot, ".dadcam")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		slog.Error("failed to create library state dir", "error", err)
		os.Exit(1)
	}
	store, err := libstore.Open(filepath.Join(libDir, "library.db"))
	if err != nil {
		slog.Error("failed to open library store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		slog.Error("failed to migrate library store", "error", err)
		os.Exit(1)
	}

	slog.Info("library store migrated", "root", cfg.LibraryRoot)
}
