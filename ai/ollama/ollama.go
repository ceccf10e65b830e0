// Package ollama provides embedding services using Ollama's native API.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/kbase/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Embedder implements ai.Embedder on top of an Ollama server.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

func newEmbedder(config *ai.Config, model string) (*Embedder, error) {
	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(config.EmbeddingHost),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}

	return &Embedder{
		embedder: embedder,
		model:    model,
		logger:   slog.Default().With("component", "ollama-embedder", "model", model),
	}, nil
}

// EmbedText generates an embedding vector for text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates embeddings for multiple texts.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	duration := time.Since(start)
	if err != nil {
		e.logger.Warn("embedding failed", "count", len(texts), "duration_ms", duration.Milliseconds(), "err", err)
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	e.logger.Debug("embedding complete", "count", len(texts), "duration_ms", duration.Milliseconds())
	return vectors, nil
}

// Provider implements ai.AIProvider for an Ollama server.
type Provider struct {
	config *ai.Config

	mu        sync.Mutex
	embedders map[string]*Embedder
}

// NewProvider validates config and returns a provider for its Ollama host.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	config.Backend = ai.BackendOllama
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Provider{config: config, embedders: make(map[string]*Embedder)}, nil
}

// Embedder returns the embedder for model, creating it on first use.
func (p *Provider) Embedder(model string) (ai.Embedder, error) {
	if model == "" {
		model = p.config.EmbeddingModel
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.embedders[model]; ok {
		return e, nil
	}
	e, err := newEmbedder(p.config, model)
	if err != nil {
		return nil, err
	}
	p.embedders[model] = e
	return e, nil
}

// DefaultModel returns the configured embedding model.
func (p *Provider) DefaultModel() string {
	return p.config.EmbeddingModel
}

// Close is a no-op; the HTTP client holds no resources.
func (p *Provider) Close() error {
	return nil
}
