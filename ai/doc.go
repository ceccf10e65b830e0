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

// Package ai provides abstractions for the embedding services used by kbase.
//
// Collections are bound to an embedding model when they are created, so the
// provider hands out embedders per model rather than a single embedder. The
// package follows the dependency inversion principle: ingestion and search
// depend on the Embedder and AIProvider interfaces, never on a concrete
// client.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embedding APIs (OpenAI, vLLM, LocalAI, Ollama's /v1)
//   - ai/ollama: Ollama's native embedding API
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, ollama.NewProvider) return
// INTERFACE types to keep callers decoupled from the client library.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//
// Test constructors (mock.NewMockEmbedder) return CONCRETE types so tests can
// inject behavior and assert on call counts.
//
//	mockEmbed := mock.NewMockEmbedder()
//	mockEmbed.EmbedTextsFunc = func(...) { ... }
//	count := mockEmbed.CallCount()
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithEmbeddingModel("nomic-embed-text"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	embedder, err := provider.Embedder("")  // configured default model
//	vector, err := embedder.EmbedText(ctx, "Hello world")
package ai
