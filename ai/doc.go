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


// Package ai provides abstractions for the inference services recollect
// calls: embeddings, entity and commitment extraction, and the completion
// used to rerank search results.
//
// # Implementation Packages
//
//   - ai/openai: implementation over OpenAI-compatible APIs (Ollama, vLLM, OpenAI)
//   - ai/mock: test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors in ai/openai return interface types:
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//
// Mock constructors return concrete types so tests can inject behavior and
// assert on call counts:
//
//	embedder := mock.NewMockEmbedder(8)  // returns *mock.MockEmbedder
//	count := embedder.CallCount()
//
// # Error classification
//
// Implementations wrap transport and server failures with
// core.ErrInferenceCall and undecodable model output with core.ErrParse, so
// callers can decide what is retryable with errors.Is.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "Dentist Friday 3pm")
//	found, err := provider.EntityExtractor().ExtractEntities(ctx, "Lunch with Priya at Bar Tartine")
package ai
