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

// Package ai provides abstractions for AI services used in bifrost.
//
// This package defines interfaces for the two model calls the system makes:
// turning detection text and questions into vectors, and turning a prompt
// built from retrieved detections into an answer. The ingestion and
// retrieval pipelines depend on these abstractions rather than on a
// concrete model server.
//
// # Interfaces
//
//   - Embedder: Generates vector embeddings from text
//   - AnswerGenerator: Produces an answer from a system and a user prompt
//   - AIProvider: Aggregates AI services for convenient initialization
//
// # Implementation Packages
//
//   - ai/ollama: Ollama's native /api/embeddings and /api/chat endpoints
//   - ai/openai: Any OpenAI-compatible /v1 API
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors (ollama.NewProvider, openai.NewEmbedder, etc.) return
// INTERFACE types. Test utility constructors (mock.NewMockEmbedder,
// mock.NewMockGenerator) return CONCRETE types so tests can inject behavior
// and read call counts.
//
// # Errors
//
// Implementations wrap embedding failures with core.ErrEmbeddingUnavailable
// and answer failures with core.ErrGenerationUnavailable.
//
// # Usage Example
//
//	config := ai.DefaultConfig()
//	provider, err := ollama.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "Label: person, ...")
//	answer, err := provider.AnswerGenerator().Generate(ctx, systemPrompt, userPrompt)
package ai
