// Command dadcamd is the background job-queue daemon: it owns the
// app store (libraries, profiles, devices) and, for every registered
// library, a worker pool draining that library's own durable job
// queue. Grounded on the teacher's cmd/ingest/main.go startup
// shape (signal context, config load, periodic reclaim loop) and
// generalized from one ingest-only loop into a kind-dispatching pool
// per internal/jobqueue.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"dadcam.systems/core/internal/appstore"
	"dadcam.systems/core/internal/camera"
	"dadcam.systems/core/internal/camera/bundled"
	"dadcam.systems/core/internal/config"
	"dadcam.systems/core/internal/derived"
	"dadcam.systems/core/internal/jobqueue"
	"dadcam.systems/core/internal/libstore"
	"dadcam.systems/core/internal/licensing"
	"dadcam.systems/core/internal/rematch"
)

const reclaimInterval = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting dadcamd")

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

	profiles, err := bundled.Load()
	if err != nil {
		slog.Error("failed to load bundled profiles", "error", err)
		os.Exit(1)
	}
	if err := app.SyncBundledProfiles(ctx, profiles); err != nil {
		slog.Error("failed to sync bundled profiles", "error", err)
		os.Exit(1)
	}

	libs, err := ensureConfiguredLibrary(ctx, app, cfg.LibraryRoot)
	if err != nil {
		slog.Error("failed to resolve libraries", "error", err)
		os.Exit(1)
	}

	gate := licenseGate(cfg.LicenseKey)

	var wg sync.WaitGroup
	for _, lib := range libs {
		lib := lib
		wg.Add(1)
		go func() {
			defer wg.Done()
			runLibrary(ctx, app, lib, cfg, gate)
		}()
	}

	<-ctx.Done()
	slog.Info("dadcamd stopping")
	wg.Wait()
}

// ensureConfiguredLibrary registers cfg.LibraryRoot as a library on
// first run, then returns every library currently known to the app
// store (a single daemon process services all of them).
func ensureConfiguredLibrary(ctx context.Context, app *appstore.Store, root string) ([]appstore.Library, error) {
	libs, err := app.ListLibraries(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range libs {
		if l.RootPath == root {
			return libs, nil
		}
	}

	id := uuid.NewString()
	if err := app.CreateLibrary(ctx, id, root, "copy"); err != nil {
		return nil, err
	}
	slog.Info("registered new library", "uuid", id, "root", root)
	return app.ListLibraries(ctx)
}

func licenseGate(key string) licensing.Gate {
	licenseType, ok := licensing.ValidateKey(key)
	if !ok {
		return licensing.KeyGate{}
	}
	return licensing.KeyGate{LicenseType: licenseType}
}

// runLibrary opens one library's store, builds its worker pool, and
// blocks until ctx is cancelled.
func runLibrary(ctx context.Context, app *appstore.Store, lib appstore.Library, cfg *config.Config, gate licensing.Gate) {
	log := slog.With("library", lib.UUID)

	if err := os.MkdirAll(filepath.Join(lib.RootPath, ".dadcam"), 0o755); err != nil {
		log.Error("failed to create library state dir", "error", err)
		return
	}
	store, err := libstore.Open(filepath.Join(lib.RootPath, ".dadcam", "library.db"))
	if err != nil {
		log.Error("failed to open library store", "error", err)
		return
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Error("failed to migrate library store", "error", err)
		return
	}

	l := &library{
		store:       store,
		libraryID:   lib.UUID,
		libraryRoot: lib.RootPath,
		sidecarDir:  filepath.Join(lib.RootPath, ".dadcam", "sidecars"),
		ingestMode:  lib.IngestMode,
	}

	gen := &derived.Generator{
		Store:           store,
		LibraryRoot:     lib.RootPath,
		DerivedDir:      l.derivedDir(),
		PipelineVersion: cfg.PipelineVersion,
		SpriteExtraFine: cfg.SpriteExtraFine,
	}

	profiles := func() ([]camera.BundledProfile, []camera.UserProfile) {
		bundledProfiles, err := app.ListBundledProfiles(ctx)
		if err != nil {
			log.Error("failed to list bundled profiles", "error", err)
		}
		userProfiles, err := app.ListUserProfiles(ctx)
		if err != nil {
			log.Error("failed to list user profiles", "error", err)
		}
		return bundledProfiles, userProfiles
	}
	devices := func() []camera.RegisteredDevice {
		records, err := app.ListDevices(ctx)
		if err != nil {
			log.Error("failed to list devices", "error", err)
			return nil
		}
		out := make([]camera.RegisteredDevice, len(records))
		for i, r := range records {
			out[i] = r.ToMatcherDevice()
		}
		return out
	}

	rematchInputs := func() rematch.Inputs {
		bundledProfiles, userProfiles := profiles()
		return rematch.Inputs{UserProfiles: userProfiles, Bundled: bundledProfiles, Devices: devices()}
	}

	handlers := map[string]jobqueue.Handler{
		"ingest":        ingestHandler(l, cfg.PipelineVersion, profiles, devices),
		"hash_full":     hashFullHandler(l),
		"thumb":         derivedHandler(l, gen, derived.RoleThumb, profiles),
		"proxy":         derivedHandler(l, gen, derived.RoleProxy, profiles),
		"sprite":        derivedHandler(l, gen, derived.RoleSprite, profiles),
		"rematch":       rematchHandler(l, rematchInputs),
		"score":         scoreHandler(l, cfg.PipelineVersion, 1),
		"recipe-render": recipeRenderHandler(l, gate),
	}

	pool := jobqueue.New(store, jobqueue.Config{
		WorkerCount:     cfg.WorkerCount,
		LeaseSeconds:    cfg.JobLeaseSeconds,
		MaxAttempts:     cfg.JobMaxAttempts,
		BackoffBaseSecs: cfg.JobBackoffBaseS,
	}, handlers, log)

	go pool.ReclaimLoop(ctx, reclaimInterval)
	pool.Run(ctx)
}
