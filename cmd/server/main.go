// Package main provides the entry point for the media tools API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/mediatools-api/internal/bootstrap"
	"github.com/maauso/mediatools-api/internal/config"
	"github.com/maauso/mediatools-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting media tools API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("sandbox_dir", cfg.SandboxDir),
		slog.String("result_store", cfg.ResultStore),
		slog.Int64("max_upload_bytes", cfg.MaxUploadBytes),
	)

	ctx := context.Background()

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Load the engine in the background so the first job does not pay for it.
	// A failure is kept by the session and reported on /engine and by jobs.
	go func() {
		if err := deps.Warmup(ctx); err != nil {
			logger.Error("engine warmup failed", slog.String("error", err.Error()))
		}
	}()

	router := server.NewRouter(deps.Handlers, logger, server.DefaultConfig())

	// Create HTTP server. WriteTimeout is left at zero: uploads and result
	// downloads can be large, and the events stream is long-lived.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		_ = deps.Close(ctx)
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Warn("failed to release resources", slog.String("error", err.Error()))
	}

	logger.Info("server stopped gracefully")
	return nil
}
