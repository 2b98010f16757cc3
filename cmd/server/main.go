package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/newsletter/internal/api"
	"github.com/ignite/newsletter/internal/app"
	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/tracking"
	"github.com/ignite/newsletter/internal/worker"
)

// checkPortAvailable fails fast when something else already listens on
// the target address.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	ln.Close()
	return nil
}

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

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		logger.Error("pre-flight check failed", "error", err)
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

	var trackHandler *tracking.Handler
	if a.Signer != nil {
		trackHandler = tracking.NewHandler(a.Signer, a.Sink)
	} else {
		logger.Warn("no signing key configured, tracking routes disabled")
	}

	h := api.NewHandlers(api.Deps{
		Campaigns:   a.Campaigns,
		Subscribers: a.Subscribers,
		Templates:   a.Templates,
		Ledger:      a.Ledger,
		Digest:      a.Digest,
		Tracking:    trackHandler,
		Health:      api.NewHealthChecker(a.DB, a.Redis),
		Pages:       a.Renderer,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           api.SetupRoutes(h, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Sends triggered from the API run inside the request.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	if a.Consumer != nil && cfg.Tracking.ConsumeInServer {
		if err := a.Consumer.Start(ctx); err != nil {
			logger.Error("tracking consumer", "error", err)
			os.Exit(1)
		}
		defer a.Consumer.Stop()
	}

	// Without a database no separate worker can see scheduled campaigns,
	// so the server polls them itself.
	if a.DB == nil {
		scheduler := worker.NewCampaignScheduler(a.Campaigns, a.Locks, cfg.Scheduler.PollInterval())
		if err := scheduler.Start(); err != nil {
			logger.Error("scheduler", "error", err)
			os.Exit(1)
		}
		defer scheduler.Stop()
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			done <- syscall.SIGTERM
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	logger.Info("server stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
