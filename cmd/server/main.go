// CRIS - Customer churn risk scoring service
package main

import (
	"context"
	"os"

	"github.com/crisintel/cris/internal/config"
	"github.com/crisintel/cris/internal/logging"
	"github.com/crisintel/cris/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "development")

	logger.Info("starting cris",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"store_backend", cfg.StoreBackend,
		"models_dir", cfg.ModelsDir,
	)

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logging.New(cfg.LogLevel, cfg.Env)))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
