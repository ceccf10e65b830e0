package ai

import (
	"errors"
	"strings"
)

// Supported embedding backends.
const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// Config contains the settings needed to reach an embedding service.
type Config struct {
	// Backend selects the client implementation: "openai" or "ollama".
	// Default: "openai"
	Backend string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the default model identifier for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// APIKey authenticates against hosted services. Local servers ignore it.
	APIKey string
}

type ConfigOption func(*Config)

func WithBackend(backend string) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

func DefaultConfig() *Config {
	return &Config{
		Backend:        BackendOpenAI,
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: "embeddinggemma",
	}
}

func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize adjusts the host to the form the selected backend expects.
// OpenAI-compatible hosts end with /v1; native Ollama hosts never do.
func (c *Config) Normalize() {
	if c.Backend == "" {
		c.Backend = BackendOpenAI
	}
	if c.EmbeddingHost == "" {
		return
	}
	host := strings.TrimSuffix(c.EmbeddingHost, "/")
	switch c.Backend {
	case BackendOllama:
		host = strings.TrimSuffix(host, "/v1")
	default:
		if !strings.HasSuffix(host, "/v1") {
			host = host + "/v1"
		}
	}
	c.EmbeddingHost = host
}

func (c *Config) Validate() error {
	// Normalize first to ensure hosts are in correct format
	c.Normalize()

	if c.Backend != BackendOpenAI && c.Backend != BackendOllama {
		return errors.New("ai config: Backend must be openai or ollama")
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	return nil
}
