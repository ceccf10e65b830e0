package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/kbase/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingServer answers OpenAI-style embedding requests with one
// two-dimensional vector per input and records the requested models.
type embeddingServer struct {
	*httptest.Server

	mu     sync.Mutex
	models []string
	drop   bool
}

func newEmbeddingServer(t *testing.T) *embeddingServer {
	s := &embeddingServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.models = append(s.models, req.Model)
		drop := s.drop
		s.mu.Unlock()

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		inputs := req.Input
		if drop && len(inputs) > 0 {
			inputs = inputs[1:]
		}
		data := make([]item, len(inputs))
		for i, text := range inputs {
			data[i] = item{Object: "embedding", Embedding: []float32{float32(len(text)), 1}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *embeddingServer) requestedModels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.models...)
}

func TestNewProvider(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		_, err := NewProvider(ai.NewConfig(ai.WithEmbeddingModel("")))
		assert.Error(t, err)
	})

	t.Run("default model", func(t *testing.T) {
		p, err := NewProvider(ai.NewConfig(ai.WithEmbeddingModel("text-embedding-3-small")))
		require.NoError(t, err)
		defer p.Close()
		assert.Equal(t, "text-embedding-3-small", p.DefaultModel())
	})
}

func TestProvider_Embedder(t *testing.T) {
	p, err := NewProvider(ai.NewConfig(ai.WithEmbeddingModel("base")))
	require.NoError(t, err)

	a, err := p.Embedder("")
	require.NoError(t, err)
	b, err := p.Embedder("base")
	require.NoError(t, err)
	c, err := p.Embedder("other")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "other", c.(*Embedder).model)
}

func TestEmbedder(t *testing.T) {
	server := newEmbeddingServer(t)
	p, err := NewProvider(ai.NewConfig(
		ai.WithEmbeddingHost(server.URL),
		ai.WithEmbeddingModel("base"),
	))
	require.NoError(t, err)
	ctx := context.Background()

	e, err := p.Embedder("mini")
	require.NoError(t, err)

	t.Run("batch", func(t *testing.T) {
		vectors, err := e.EmbedTexts(ctx, []string{"a", "bbb"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 1}, {3, 1}}, vectors)
		assert.Contains(t, server.requestedModels(), "mini")
	})

	t.Run("single", func(t *testing.T) {
		vector, err := e.EmbedText(ctx, "four")
		require.NoError(t, err)
		assert.Equal(t, []float32{4, 1}, vector)
	})

	t.Run("empty batch skips the service", func(t *testing.T) {
		before := len(server.requestedModels())
		vectors, err := e.EmbedTexts(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
		assert.Len(t, server.requestedModels(), before)
	})

	t.Run("count mismatch", func(t *testing.T) {
		server.mu.Lock()
		server.drop = true
		server.mu.Unlock()
		defer func() {
			server.mu.Lock()
			server.drop = false
			server.mu.Unlock()
		}()

		_, err := e.EmbedTexts(ctx, []string{"a", "b"})
		assert.Error(t, err)
	})
}
