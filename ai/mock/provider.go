package mock

import (
	"sync"

	"github.com/poiesic/kbase/ai"
)

// MockModel is the default model name reported by MockProvider.
const MockModel = "mock-embed"

// MockProvider is a test double for ai.AIProvider.
// Every model resolves to the same MockEmbedder.
type MockProvider struct {
	embedder *MockEmbedder

	mu        sync.Mutex
	requested []string
}

// NewMockProvider creates a new mock provider with a default mock embedder.
//
// Returns ai.AIProvider interface for consistency with production constructors.
// Use GetMockEmbedder() to access the concrete type for test assertions.
func NewMockProvider() ai.AIProvider {
	return &MockProvider{embedder: NewMockEmbedder()}
}

// NewMockProviderWithEmbedder creates a mock provider around a custom embedder.
func NewMockProviderWithEmbedder(embedder *MockEmbedder) *MockProvider {
	return &MockProvider{embedder: embedder}
}

// Embedder returns the mock embedder and records the requested model.
func (p *MockProvider) Embedder(model string) (ai.Embedder, error) {
	if model == "" {
		model = MockModel
	}
	p.mu.Lock()
	p.requested = append(p.requested, model)
	p.mu.Unlock()
	return p.embedder, nil
}

// DefaultModel returns MockModel.
func (p *MockProvider) DefaultModel() string {
	return MockModel
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
// This allows tests to check call counts and inject custom behavior.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// RequestedModels returns the models passed to Embedder, in call order.
func (p *MockProvider) RequestedModels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.requested...)
}
