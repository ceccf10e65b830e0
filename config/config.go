// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config loads application settings for the kbase commands from a
// YAML file, a .env file and KBASE_* environment variables, and builds the
// process logger.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/queue"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a loaded setting is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application settings.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Queue    QueueConfig    `yaml:"queue"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // Badger directory
}

type AIConfig struct {
	Backend string `yaml:"backend"` // "openai" or "ollama"
	Host    string `yaml:"host"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

type QueueConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	MaxWorkload    int64         `yaml:"max_workload"` // Bytes
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	EmbedBatchSize int           `yaml:"embed_batch_size"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error
	File  string `yaml:"file"`  // Optional JSON log file
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // Listen address for /metrics, empty to disable
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	queueDefaults := queue.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{Path: "kbase.db"},
		AI: AIConfig{
			Backend: aiDefaults.Backend,
			Host:    aiDefaults.EmbeddingHost,
			Model:   aiDefaults.EmbeddingModel,
		},
		Queue: QueueConfig{
			MaxConcurrent:  queueDefaults.MaxConcurrent,
			MaxWorkload:    queueDefaults.MaxWorkload,
			MaxRetries:     queueDefaults.MaxRetries,
			RetryDelay:     queueDefaults.RetryDelay,
			EmbedBatchSize: 32,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration in increasing order of precedence: defaults,
// the YAML file at path, then KBASE_* environment variables. A .env file next
// to path (or in the working directory when path is empty) is loaded into the
// environment first; variables already set are not replaced.
//
// An empty path skips the file. A path that does not exist is an error.
func Load(path string) (*Config, error) {
	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from KBASE_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
		}
		*dst = n
		return nil
	}

	str("KBASE_DB_PATH", &c.Database.Path)
	str("KBASE_AI_BACKEND", &c.AI.Backend)
	str("KBASE_AI_HOST", &c.AI.Host)
	str("KBASE_AI_MODEL", &c.AI.Model)
	str("KBASE_AI_API_KEY", &c.AI.APIKey)
	str("KBASE_LOG_LEVEL", &c.Logging.Level)
	str("KBASE_LOG_FILE", &c.Logging.File)
	str("KBASE_METRICS_ADDR", &c.Metrics.Addr)

	if err := integer("KBASE_QUEUE_MAX_CONCURRENT", &c.Queue.MaxConcurrent); err != nil {
		return err
	}
	if err := integer("KBASE_QUEUE_MAX_RETRIES", &c.Queue.MaxRetries); err != nil {
		return err
	}
	if err := integer("KBASE_EMBED_BATCH_SIZE", &c.Queue.EmbedBatchSize); err != nil {
		return err
	}
	if v, ok := lookup("KBASE_QUEUE_MAX_WORKLOAD"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: KBASE_QUEUE_MAX_WORKLOAD: %w", ErrInvalidConfig, err)
		}
		c.Queue.MaxWorkload = n
	}
	if v, ok := lookup("KBASE_QUEUE_RETRY_DELAY"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: KBASE_QUEUE_RETRY_DELAY: %w", ErrInvalidConfig, err)
		}
		c.Queue.RetryDelay = d
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}
	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.QueueConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Queue.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: embed batch size must be at least 1, got %d", ErrInvalidConfig, c.Queue.EmbedBatchSize)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// AIConfig returns the embedding service settings.
func (c *Config) AIConfig() *ai.Config {
	cfg := ai.NewConfig(
		ai.WithBackend(c.AI.Backend),
		ai.WithEmbeddingHost(c.AI.Host),
		ai.WithEmbeddingModel(c.AI.Model),
		ai.WithAPIKey(c.AI.APIKey),
	)
	cfg.Normalize()
	return cfg
}

// QueueConfig returns the scheduling limits.
func (c *Config) QueueConfig() queue.Config {
	return queue.Config{
		MaxConcurrent: c.Queue.MaxConcurrent,
		MaxWorkload:   c.Queue.MaxWorkload,
		MaxRetries:    c.Queue.MaxRetries,
		RetryDelay:    c.Queue.RetryDelay,
	}
}

// ParseLevel maps a level name to a slog.Level. An empty name is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
	}
}
