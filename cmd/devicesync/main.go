// Device Sync Engine
//
// This is the main entry point for the device-sync engine: a local
// synchronization service that keeps a live mirror of an IoT fleet's device
// state. It maintains an authenticated push channel to the upstream
// dashboard server, normalizes the mixed message shapes arriving on it,
// merges them into an in-memory store, and serves the merged view to a
// local dashboard UI over HTTP and WebSocket. Control intents flow the
// other way with optimistic local feedback and rollback on failure.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fleexa/device-sync/internal/engine"
	"github.com/fleexa/device-sync/internal/infrastructure/config"
	"github.com/fleexa/device-sync/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting device-sync engine",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	engine.Version = version

	eng, err := engine.New(cfg, log)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			log.Error("error during shutdown", "error", closeErr)
		}
	}()

	// Verify the started components are responsive
	if err := eng.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DEVICESYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DEVICESYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
