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


package mock

import "github.com/poiesic/recollect/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates mock instances of every service.
type MockProvider struct {
	embedder    *MockEmbedder
	entities    *MockEntityExtractor
	commitments *MockCommitmentExtractor
	completer   *MockCompleter
	closed      bool
}

// NewMockProvider creates a new mock provider with default mock services.
//
// Returns ai.AIProvider interface for consistency with production constructors.
// Use the GetMock accessors to reach concrete types for test assertions.
func NewMockProvider() ai.AIProvider {
	return NewMockProviderWithServices(
		NewMockEmbedder(DefaultDimensions),
		NewMockEntityExtractor(),
		NewMockCommitmentExtractor(),
		NewMockCompleter(""),
	)
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
// This allows full control over the behavior of each service.
func NewMockProviderWithServices(embedder *MockEmbedder, entities *MockEntityExtractor,
	commitments *MockCommitmentExtractor, completer *MockCompleter) *MockProvider {
	return &MockProvider{
		embedder:    embedder,
		entities:    entities,
		commitments: commitments,
		completer:   completer,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// EntityExtractor returns the mock entity extractor.
func (p *MockProvider) EntityExtractor() ai.EntityExtractor {
	return p.entities
}

// CommitmentExtractor returns the mock commitment extractor.
func (p *MockProvider) CommitmentExtractor() ai.CommitmentExtractor {
	return p.commitments
}

// Completer returns the mock completer.
func (p *MockProvider) Completer() ai.Completer {
	return p.completer
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockEntityExtractor returns the underlying mock entity extractor.
func (p *MockProvider) GetMockEntityExtractor() *MockEntityExtractor {
	return p.entities
}

// GetMockCommitmentExtractor returns the underlying mock commitment extractor.
func (p *MockProvider) GetMockCommitmentExtractor() *MockCommitmentExtractor {
	return p.commitments
}

// GetMockCompleter returns the underlying mock completer.
func (p *MockProvider) GetMockCompleter() *MockCompleter {
	return p.completer
}
