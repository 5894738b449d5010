package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediatools-api/internal/config"
	"github.com/maauso/mediatools-api/internal/engine"
	"github.com/maauso/mediatools-api/internal/result"
	"github.com/maauso/mediatools-api/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		FFmpegPath:         filepath.Join(t.TempDir(), "no-ffmpeg"),
		SandboxDir:         filepath.Join(t.TempDir(), "sandbox"),
		EngineOrigin:       "http://192.168.1.20:8080",
		ProgressIntervalMs: 500,
		LogBufferSize:      50,
		MaxUploadBytes:     1 << 20,
		ResultStore:        config.ResultStoreMemory,
	}
}

func TestNewDependencies_Memory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := NewDependencies(context.Background(), testConfig(t), logger)
	require.NoError(t, err)

	assert.NotNil(t, deps.Handlers)
	assert.Equal(t, engine.TierSingle, deps.Session.Tier())
	assert.Equal(t, engine.StateIdle, deps.Session.Status().State)
	assert.False(t, deps.Jobs.IsBusy())

	require.NoError(t, deps.Close(context.Background()))
}

func TestWarmup_MissingBinary(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, err := NewDependencies(context.Background(), testConfig(t), logger)
	require.NoError(t, err)

	err = deps.Warmup(context.Background())
	var initErr *engine.InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, engine.StateFailed, deps.Session.Status().State)
}

func TestInitResultStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testConfig(t)
	store, err := initResultStore(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &result.MemoryStore{}, store)

	cfg.ResultStore = config.ResultStoreS3
	cfg.S3Bucket = "results"
	cfg.S3Region = "us-east-1"
	cfg.S3Endpoint = "http://127.0.0.1:9000"
	cfg.AWSAccessKeyID = "test"
	cfg.AWSSecretAccessKey = "test"
	store, err = initResultStore(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &storage.S3Store{}, store)
}
