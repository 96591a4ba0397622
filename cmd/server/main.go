/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the register engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from environment variables
  2. Initialize structured logging
  3. Initialize the SQLite store
  4. Wire gate, service, handler, router
  5. Start the server with graceful shutdown

ENVIRONMENT:
  PORT          HTTP server port (default: 8080)
  DB_PATH       SQLite database path (default: registers.db, ":memory:" works)
  LOG_LEVEL     trace|debug|info|warn|error (default: info)
  LOG_PRETTY    true for console output, false for JSON (default: false)
  CORS_ORIGINS  Comma-separated allowed origins

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tillpoint/register-engine/api"
	"github.com/tillpoint/register-engine/config"
	"github.com/tillpoint/register-engine/logger"
	"github.com/tillpoint/register-engine/register"
	"github.com/tillpoint/register-engine/store/sqlite"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Staff directory. In a full deployment this is fed from the staff
	// management module; standalone runs get a default admin.
	directory := register.NewRoleDirectory()
	directory.Grant("admin", register.RoleAdmin)

	gate := register.NewGate(directory)
	service := register.NewService(store, gate, register.WithLogger(log))

	handler := api.NewHandler(service)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Port).Str("db", cfg.DBPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shut down")
	}

	log.Info().Msg("server stopped")
}
