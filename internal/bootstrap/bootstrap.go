// Package bootstrap provides dependency initialization for the media tools API.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/mediatools-api/internal/config"
	"github.com/maauso/mediatools-api/internal/engine"
	"github.com/maauso/mediatools-api/internal/job"
	"github.com/maauso/mediatools-api/internal/metrics"
	"github.com/maauso/mediatools-api/internal/result"
	"github.com/maauso/mediatools-api/internal/server"
	"github.com/maauso/mediatools-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server and CLI.
type Dependencies struct {
	Session  *engine.Session
	Results  *result.Materializer
	Jobs     *job.Service
	Handlers *server.Handlers
}

// NewDependencies creates and initializes all dependencies for the application.
// The engine is not loaded here; the first job (or Warmup) loads it.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize engine session
	tier := engine.SelectTier(cfg.EngineOrigin, cfg.EngineSecureContext)
	eng := engine.NewFFmpegEngine(cfg.FFmpegPath, cfg.SandboxDir, engine.WithLogger(component(logger, "engine")))
	session := engine.NewSession(eng,
		engine.WithTier(tier),
		engine.WithLogCapacity(cfg.LogBufferSize),
		engine.WithSessionLogger(component(logger, "session")),
	)
	logger.Info("engine configured",
		slog.String("ffmpeg", cfg.FFmpegPath),
		slog.String("sandbox_dir", cfg.SandboxDir),
		slog.String("tier", string(tier)),
	)

	// Initialize result store
	store, err := initResultStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	results := result.NewMaterializer(store, result.WithLogger(component(logger, "results")))

	// Initialize job service
	svc := job.NewService(session, job.NewMemoryRepository(), results,
		job.WithServiceLogger(component(logger, "jobs")),
		job.WithMetrics(metrics.Jobs{}),
		job.WithProgressInterval(cfg.ProgressInterval()),
		job.WithMaxInputSize(cfg.MaxUploadBytes),
	)

	handlers := server.NewHandlers(svc, results, session, component(logger, "http"),
		server.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)

	return &Dependencies{
		Session:  session,
		Results:  results,
		Jobs:     svc,
		Handlers: handlers,
	}, nil
}

// Warmup loads the engine ahead of the first job and records readiness.
func (d *Dependencies) Warmup(ctx context.Context) error {
	err := d.Session.Initialize(ctx)
	metrics.SetEngineReady(err == nil)
	return err
}

// Close releases every published result and tears the engine down.
func (d *Dependencies) Close(ctx context.Context) error {
	return errors.Join(
		d.Results.Close(ctx),
		d.Session.Close(),
	)
}

// initResultStore creates the result backend selected by configuration.
func initResultStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (result.Store, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Prefix:          cfg.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 result store: %w", err)
		}
		logger.Info("S3 result store configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("prefix", cfg.S3Prefix),
		)
		return s3Store, nil
	}

	logger.Info("memory result store configured")
	return result.NewMemoryStore("/results"), nil
}

func component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(slog.String("component", name))
}
