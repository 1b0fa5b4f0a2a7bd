// Package main is the entrypoint for the framecheck API server.
package main

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

	"github.com/kiranshivaraju/framecheck/internal/api"
	"github.com/kiranshivaraju/framecheck/internal/api/handler"
	mw "github.com/kiranshivaraju/framecheck/internal/api/middleware"
	"github.com/kiranshivaraju/framecheck/internal/api/response"
	"github.com/kiranshivaraju/framecheck/internal/api/ws"
	"github.com/kiranshivaraju/framecheck/internal/archive"
	"github.com/kiranshivaraju/framecheck/internal/cache"
	"github.com/kiranshivaraju/framecheck/internal/config"
	"github.com/kiranshivaraju/framecheck/internal/controller"
	"github.com/kiranshivaraju/framecheck/internal/detector"
	"github.com/kiranshivaraju/framecheck/internal/recorder"
	"github.com/kiranshivaraju/framecheck/internal/store"
	"github.com/kiranshivaraju/framecheck/internal/validate"
)

const shutdownTimeout = 30 * time.Second

// bootstrapKeyName names the admin key created from FRAMECHECK_BOOTSTRAP_KEY.
const bootstrapKeyName = "bootstrap"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast when invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setLogLevel(cfg.Logging.Level)
	slog.Info("config loaded", "env", cfg.Server.Env, "detector", cfg.Detector.BaseURL,
		"archive_enabled", cfg.Archive.Enabled())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and seed the bootstrap key
	pgStore := store.NewPostgresStore(pool)
	if err := ensureBootstrapKey(ctx, pgStore, cfg.Server.BootstrapAPIKey); err != nil {
		return fmt.Errorf("bootstrap api key: %w", err)
	}

	// 6. Detection service client
	detectorClient := detector.NewHTTPClient(cfg.Detector.BaseURL, cfg.Detector.APIKey, cfg.Detector.Timeout)
	if err := detectorClient.Ready(ctx); err != nil {
		// The service may come up later; polling surfaces errors per job.
		slog.Warn("detection service not ready", "error", err)
	}

	// 7. Optional upload archive
	var (
		arch      archive.Archiver
		archProbe pinger
	)
	if cfg.Archive.Enabled() {
		minioArchive, err := archive.NewMinIOArchive(cfg.Archive)
		if err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
		if err := minioArchive.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure archive bucket: %w", err)
		}
		arch, archProbe = minioArchive, minioArchive
		slog.Info("upload archive enabled", "bucket", cfg.Archive.Bucket)
	}

	// 8. Job controller, history recorder and live updates
	ctrl := controller.New(detectorClient,
		controller.WithPollInterval(cfg.Detector.PollInterval),
		controller.WithLogger(slog.Default().With("component", "controller")),
	)

	rec := recorder.New(ctrl, pgStore, redisCache, cfg.Detector.FlagThreshold)
	recDone := make(chan struct{})
	go func() {
		defer close(recDone)
		if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("recorder stopped", "error", err)
		}
	}()

	hub := ws.NewHub()
	go hub.Run(ctx)
	snapshots, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	go hub.Forward(ctx, snapshots)

	// 9. Build router with dependencies
	v := validate.New(cfg.Upload.MaxBytes, cfg.Upload.AllowedExtensions)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler: healthHandler(pgStore, redisCache, detectorClient, archProbe),

		SubmitHandler:        handler.NewSubmitHandler(ctrl, v, arch),
		AnalysisStateHandler: handler.NewGetAnalysisStateHandler(ctrl),
		ResetHandler:         handler.NewResetHandler(ctrl),
		ResultsHandler:       handler.NewResultsHandler(ctrl),
		StreamHandler:        hub.HandleWS,
		JobStatusHandler:     handler.NewJobStatusHandler(redisCache),

		ListAnalysesHandler: handler.NewListAnalysesHandler(pgStore),
		GetAnalysisHandler:  handler.NewGetAnalysisHandler(pgStore, redisCache),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads of up to the size limit must fit in ReadTimeout.
		ReadTimeout: 2 * time.Minute,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		ctrl.Close()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	ctrl.Close()
	<-recDone

	slog.Info("server stopped gracefully")
	return nil
}

func setLogLevel(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}

// ensureBootstrapKey stores rawKey as an admin key unless one named
// bootstrapKeyName is already active. An empty rawKey is a no-op.
func ensureBootstrapKey(ctx context.Context, s store.Store, rawKey string) error {
	if rawKey == "" {
		return nil
	}

	keys, err := s.ListAPIKeys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.Name == bootstrapKeyName {
			return nil
		}
	}

	key, err := handler.NewAPIKey(bootstrapKeyName, rawKey, []string{mw.ScopeAdmin}, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := s.CreateAPIKey(ctx, key); err != nil && !errors.Is(err, store.ErrDuplicateKey) {
		return err
	}
	slog.Info("bootstrap api key created", "key_prefix", key.KeyPrefix)
	return nil
}

// readinessChecker reports whether the detection service is reachable.
type readinessChecker interface {
	Ready(ctx context.Context) error
}

// pinger is satisfied by the optional upload archive.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database, cache and detection service connectivity,
// plus the upload archive when one is configured (arch may be nil).
func healthHandler(s store.Store, c cache.Cache, d readinessChecker, arch pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		probes := map[string]func(context.Context) error{
			"database": s.Ping,
			"cache":    c.Ping,
			"detector": d.Ready,
		}
		if arch != nil {
			probes["archive"] = arch.Ping
		}

		checks := make(map[string]string, len(probes))
		healthy := true
		for name, probe := range probes {
			if err := probe(r.Context()); err != nil {
				slog.Warn("health check failed", "service", name, "error", err)
				checks[name] = "degraded"
				healthy = false
				continue
			}
			checks[name] = "ok"
		}

		if !healthy {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}
		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
