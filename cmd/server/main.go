package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/study-pilot/internal/curriculum"
	"github.com/p-n-ai/study-pilot/internal/mastery"
	"github.com/p-n-ai/study-pilot/internal/platform/cache"
	"github.com/p-n-ai/study-pilot/internal/platform/config"
	"github.com/p-n-ai/study-pilot/internal/platform/database"
	"github.com/p-n-ai/study-pilot/internal/quiz"
	"github.com/p-n-ai/study-pilot/internal/roadmap"
	"github.com/p-n-ai/study-pilot/internal/study"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	catalog, err := curriculum.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	tracker, err := mastery.NewTracker(mastery.Params{
		PLearn: cfg.Mastery.PLearn,
		PGuess: cfg.Mastery.PGuess,
		PSlip:  cfg.Mastery.PSlip,
	})
	if err != nil {
		return err
	}

	svcCfg := study.ServiceConfig{
		Catalog:         catalog,
		Tracker:         tracker,
		Scheduler:       roadmap.NewScheduler().WithMaxWeeks(cfg.Roadmap.MaxWeeks),
		DefaultQuizSize: cfg.Quiz.DefaultSize,
	}
	if cfg.Quiz.Seed != 0 {
		svcCfg.Selector = quiz.NewSeededSelector(cfg.Quiz.Seed)
	}

	checks := map[string]healthChecker{}

	if cfg.HasDatabase() {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer db.Close()

		repo, err := study.NewPostgresRepository(db.Pool)
		if err != nil {
			return err
		}
		if cfg.Database.Migrate {
			if err := repo.Migrate(ctx); err != nil {
				return err
			}
		}
		svcCfg.Repository = repo
		svcCfg.Events = study.NewPostgresEventLogger(db.Pool)
		checks["database"] = db
	} else {
		slog.Warn("LEARN_DATABASE_URL not set, keeping learner state in memory")
	}

	if cfg.HasCache() {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return err
		}
		defer c.Close()

		svcCfg.Cache = study.NewRoadmapCache(c, cfg.Roadmap.CacheTTL, catalog.Fingerprint())
		checks["cache"] = c
	}

	svc, err := study.NewService(svcCfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newMux(svc, checks),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
