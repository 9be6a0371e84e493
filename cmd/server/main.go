package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/recordimport/internal/config"
	"github.com/JonMunkholm/recordimport/internal/core"
	"github.com/JonMunkholm/recordimport/internal/logging"
	"github.com/JonMunkholm/recordimport/internal/metrics"
	"github.com/JonMunkholm/recordimport/internal/store/pgstore"
	"github.com/JonMunkholm/recordimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireDatabase()
	}
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	pool, err := pgstore.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database", "name", pgstore.DatabaseName(cfg.Database.URL))

	store := pgstore.New(pool)
	m := metrics.New()
	limiter := core.NewLimiter(cfg.ImportSlots(), cfg.Import.MaxWaitTime)
	logger.Info("import slots", "slots", limiter.Slots(), "db_max_conns", cfg.Database.MaxConns)

	service := core.NewService(store, core.Settings{
		Workers:  cfg.Import.Workers,
		Limiter:  limiter,
		Retry:    cfg.Import.RetryPolicy(),
		Logger:   logger,
		Observer: m,
	})

	server := web.NewServer(cfg, web.Deps{
		Service: service,
		Metrics: m,
		Health:  store.Ping,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err, "running_imports", limiter.Running())
		} else {
			logger.Info("all imports completed")
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
}
