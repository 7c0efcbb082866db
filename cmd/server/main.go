// Package main is the entry point for the companion server.
//
// The main package stays minimal. Its job is to:
// 1. Read configuration (env vars, optional .env file)
// 2. Create process-wide dependencies (logger, tracer provider)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/directory, ...).
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/companion/internal/config"
	"github.com/sakif/companion/internal/logging"
	"github.com/sakif/companion/internal/server"
	"github.com/sakif/companion/internal/telemetry"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Invalid values stop startup here, before anything is opened.
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	// === 3. TRACING ===
	shutdownTracing, err := telemetry.Setup(context.Background(), telemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		SampleRatio: cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		logger.Error("failed to set up tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
