package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/newsletter/internal/app"
	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/worker"
)

// The worker runs the scheduled-send poller and drains the tracking
// queue. Several workers may run at once; campaign pickup is guarded by
// a distributed lock.
func main() {
	cfg, err := config.LoadFromEnv(envOr("CONFIG_PATH", "config/config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireDatabase(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	scheduler := worker.NewCampaignScheduler(a.Campaigns, a.Locks, cfg.Scheduler.PollInterval())
	if err := scheduler.Start(); err != nil {
		logger.Error("scheduler", "error", err)
		os.Exit(1)
	}

	if a.Consumer != nil {
		if err := a.Consumer.Start(ctx); err != nil {
			logger.Error("tracking consumer", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("no tracking queue configured, consumer not started")
	}

	logger.Info("worker running", "locks", a.Locks.Backend())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	if a.Consumer != nil {
		a.Consumer.Stop()
	}
	scheduler.Stop()
	logger.Info("worker stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
