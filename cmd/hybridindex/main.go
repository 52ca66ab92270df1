package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/syntrixbase/hybridindex/internal/config"
	"github.com/syntrixbase/hybridindex/internal/logging"
	"github.com/syntrixbase/hybridindex/internal/services"
)

func main() {
	// 0. Parse Command Line Flags
	configDir := flag.String("config", "configs", "Directory containing config.yml")
	once := flag.Bool("once", false, "Run the cleaner once and exit")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer shutdownLogging()

	// 2. Initialize Service Manager
	mgr := services.NewManager(cfg, services.Options{Logger: slog.Default()})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mgr.Init(ctx); err != nil {
		slog.Error("Failed to initialize services", "error", err)
		exit(1)
	}

	if *once {
		changed, err := mgr.Cleaner().Run(ctx)
		slog.Info("Cleanup finished", "changed", changed, "stats", mgr.Cleaner().LastStats())
		mgr.Shutdown(ctx)
		if err != nil {
			slog.Error("Cleanup failed", "error", err)
			exit(1)
		}
		return
	}

	// 3. Start Services
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if err := mgr.Start(bgCtx); err != nil {
		slog.Error("Failed to start services", "error", err)
		mgr.Shutdown(ctx)
		exit(1)
	}
	slog.Info("Hybrid index started",
		"store", cfg.Store.Path,
		"async_provider", cfg.Async.Provider,
		"cleaner_enabled", cfg.Cleaner.Enabled,
		"cleaner_interval", cfg.Cleaner.Interval,
	)

	// 4. Wait for Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("Shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Cancel background tasks first
	bgCancel()

	mgr.Shutdown(shutdownCtx)
	slog.Info("Hybrid index stopped")
}

// Replaced in tests.
var (
	shutdownLogging = logging.Shutdown
	osExit          = os.Exit
)

// exit closes the log files before terminating, since os.Exit skips defers.
func exit(code int) {
	if err := shutdownLogging(); err != nil {
		log.Printf("Failed to close log files: %v", err)
	}
	osExit(code)
}
