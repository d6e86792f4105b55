// Command guardian is the web-page monitoring daemon.
//
// Usage:
//
//	guardian -config guardian.yaml     # run with a YAML config file
//	guardian -db guardian.db           # run with defaults against one DB
//	guardian -once                     # run a single cycle and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite"

	"github.com/deadlineshield/guardian/dbopen"
	"github.com/deadlineshield/guardian/guardian"
)

func main() {
	configPath := flag.String("config", "", "path to guardian.yaml config file")
	dbPath := flag.String("db", "", "path to the SQLite database (overrides config)")
	once := flag.Bool("once", false, "run one cycle and exit")
	cronSpec := flag.String("cron", "", "cron expression for cycle cadence (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dbPath, *cronSpec, *once); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("guardian: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath, cronSpec string, once bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if cronSpec != "" {
		cfg.Cron = cronSpec
	}

	db, err := dbopen.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	svc, err := guardian.New(db, cfg.serviceConfig(), logger)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}

	if once {
		stats, err := svc.RunCycle(ctx)
		if err != nil {
			return fmt.Errorf("run cycle: %w", err)
		}
		logger.Info("cycle complete",
			"dispatched", stats.Dispatched,
			"changed", stats.Changed,
			"failed", stats.Failed)
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.Cron != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.Cron, func() {
			if _, err := svc.RunCycle(ctx); err != nil && ctx.Err() == nil {
				logger.Error("cron cycle failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("cron spec %q: %w", cfg.Cron, err)
		}
		c.Start()
		defer c.Stop()
		logger.Info("cron cadence active", "spec", cfg.Cron)
	} else {
		go func() {
			if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler stopped", "error", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return ctx.Err()
}
