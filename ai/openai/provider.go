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

package openai

import (
	"log/slog"
	"sync"

	"github.com/poiesic/kbase/ai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// Embedders are created lazily, one per model, and reused.
type Provider struct {
	config *ai.Config
	logger *slog.Logger

	mu        sync.Mutex
	embedders map[string]*Embedder
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Provider{
		config:    config,
		logger:    slog.Default().With("component", "openai-provider"),
		embedders: make(map[string]*Embedder),
	}, nil
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
	p.logger.Debug("created embedder", "model", model)
	return e, nil
}

// DefaultModel returns the configured embedding model.
func (p *Provider) DefaultModel() string {
	return p.config.EmbeddingModel
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
