package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "kbase.db", cfg.Database.Path)
	assert.Equal(t, ai.BackendOpenAI, cfg.AI.Backend)
	assert.Equal(t, queue.DefaultConfig(), cfg.QueueConfig())
	assert.Equal(t, 32, cfg.Queue.EmbedBatchSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "kbase.yaml", `
database:
  path: /var/lib/kbase
ai:
  backend: ollama
  host: http://gpu-box:11434/v1/
  model: nomic-embed-text
queue:
  max_concurrent: 5
  max_workload: 1048576
  retry_delay: 500ms
logging:
  level: debug
metrics:
  addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/kbase", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Queue.MaxConcurrent)
	assert.EqualValues(t, 1<<20, cfg.Queue.MaxWorkload)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.RetryDelay)
	assert.Equal(t, queue.DefaultMaxRetries, cfg.Queue.MaxRetries, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)

	aiCfg := cfg.AIConfig()
	assert.Equal(t, ai.BackendOllama, aiCfg.Backend)
	assert.Equal(t, "http://gpu-box:11434", aiCfg.EmbeddingHost)
	assert.Equal(t, "nomic-embed-text", aiCfg.EmbeddingModel)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "kbase.yaml", "queue:\n  max_concurrent: 5\n")

	t.Setenv("KBASE_QUEUE_MAX_CONCURRENT", "7")
	t.Setenv("KBASE_QUEUE_RETRY_DELAY", "3s")
	t.Setenv("KBASE_QUEUE_MAX_WORKLOAD", "4096")
	t.Setenv("KBASE_AI_MODEL", "text-embedding-3-small")
	t.Setenv("KBASE_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Queue.MaxConcurrent)
	assert.Equal(t, 3*time.Second, cfg.Queue.RetryDelay)
	assert.EqualValues(t, 4096, cfg.Queue.MaxWorkload)
	assert.Equal(t, "text-embedding-3-small", cfg.AI.Model)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "kbase.yaml", "")
	writeFile(t, dir, ".env", "KBASE_AI_API_KEY=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("KBASE_AI_API_KEY") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.AI.APIKey)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		missing bool
	}{
		{name: "missing file", missing: true},
		{name: "malformed yaml", yaml: "queue: [1, 2"},
		{name: "zero concurrency", yaml: "queue:\n  max_concurrent: 0\n"},
		{name: "unknown backend", yaml: "ai:\n  backend: bedrock\n"},
		{name: "unknown log level", yaml: "logging:\n  level: loud\n"},
		{name: "bad batch size", yaml: "queue:\n  embed_batch_size: -1\n"},
		{name: "bad integer env", env: map[string]string{"KBASE_QUEUE_MAX_RETRIES": "many"}},
		{name: "bad duration env", env: map[string]string{"KBASE_QUEUE_RETRY_DELAY": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(dir, "absent.yaml")
			if !tt.missing {
				path = writeFile(t, t.TempDir(), "kbase.yaml", tt.yaml)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSetupLogger(t *testing.T) {
	t.Run("stderr only", func(t *testing.T) {
		logger, cleanup, err := SetupLogger(LoggingConfig{Level: "warn"})
		require.NoError(t, err)
		defer cleanup()
		assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
		assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
	})

	t.Run("with file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "kbase.log")
		logger, cleanup, err := SetupLogger(LoggingConfig{Level: "info", File: file})
		require.NoError(t, err)
		logger.Info("hello", "component", "test")
		require.NoError(t, cleanup())

		data, err := os.ReadFile(file)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"hello"`)
		assert.Contains(t, string(data), `"component":"test"`)
	})

	t.Run("bad level", func(t *testing.T) {
		_, _, err := SetupLogger(LoggingConfig{Level: "loud"})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)
	logger.Info("queue drained", "completed", 3)
	logger.Debug("hidden")

	assert.Contains(t, stderr.String(), "msg=\"queue drained\"")
	assert.Contains(t, file.String(), `"completed":3`)
	assert.NotContains(t, stderr.String(), "hidden")
}
